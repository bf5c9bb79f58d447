package content

import "testing"

func TestNewHeadingClampsLevel(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{4, 4},
		{6, 6},
		{7, 6},
		{42, 6},
	}
	for _, tt := range tests {
		if got := NewHeading(tt.in, Plain("x")).Level; got != tt.want {
			t.Errorf("NewHeading(%d).Level = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewTableKeepsRaggedRows(t *testing.T) {
	table := NewTable([]string{"a", "b", "c"}, [][]string{{"1"}, {"1", "2", "3", "4"}})
	if len(table.Rows[0]) != 1 || len(table.Rows[1]) != 4 {
		t.Fatalf("rows were normalised: %+v", table.Rows)
	}
}

func TestTextFlattensNodes(t *testing.T) {
	if got := Text(NewParagraph(Run{Text: "Hello ", Bold: true}, Plain("world"))); got != "Hello world" {
		t.Fatalf("paragraph text = %q", got)
	}
	table := NewTable([]string{"h1", "h2"}, [][]string{{"a", "b"}})
	if got := Text(table); got != "h1\th2\na\tb" {
		t.Fatalf("table text = %q", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	nodes := []Node{
		NewHeading(2, Plain("Title")),
		NewParagraph(Run{Text: "see", Hyperlink: &Link{Href: "https://example.com"}}),
		NewListItem(1, Run{Text: "item", Italic: true}),
		CodeBlock{Text: "x := 1"},
		Quote{Text: "quoted"},
		NewTable([]string{"a"}, [][]string{{"1", "2"}}),
	}
	raw, err := Marshal(nodes)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	decoded, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(decoded) != len(nodes) {
		t.Fatalf("decoded %d nodes, want %d", len(decoded), len(nodes))
	}
	for i := range nodes {
		if decoded[i].Kind() != nodes[i].Kind() {
			t.Errorf("node %d kind = %s, want %s", i, decoded[i].Kind(), nodes[i].Kind())
		}
	}
	link := decoded[1].(Paragraph).Runs[0].Hyperlink
	if link == nil || link.Href != "https://example.com" {
		t.Fatalf("hyperlink lost: %+v", decoded[1])
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	if _, err := Unmarshal([]byte(`[{"kind":"video","data":{}}]`)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	nodes, err := Unmarshal(nil)
	if err != nil || len(nodes) != 0 {
		t.Fatalf("Unmarshal(nil) = %v, %v", nodes, err)
	}
}
