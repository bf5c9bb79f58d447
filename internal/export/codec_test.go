package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"docbridge/internal/content"
)

const sampleMarkdown = "# Title\n\n" +
	"Hello **bold** and *it* `code` [link](https://x.io)\n\n" +
	"- a\n- b\n  - c\n\n" +
	"```go\nx := 1\n```\n\n" +
	"> quoted\n\n" +
	"| h1 | h2 |\n|----|----|\n| 1 | 2 |\n\n" +
	"---\n"

func TestFromMarkdownMapping(t *testing.T) {
	nodes := FromMarkdown(sampleMarkdown)

	wantKinds := []content.Kind{
		content.KindHeading,
		content.KindParagraph,
		content.KindListItem, content.KindListItem, content.KindListItem,
		content.KindCodeBlock,
		content.KindQuote,
		content.KindTable,
		content.KindParagraph,
	}
	if len(nodes) != len(wantKinds) {
		t.Fatalf("got %d nodes, want %d: %#v", len(nodes), len(wantKinds), nodes)
	}
	for i, kind := range wantKinds {
		if nodes[i].Kind() != kind {
			t.Errorf("node %d kind = %s, want %s", i, nodes[i].Kind(), kind)
		}
	}

	heading := nodes[0].(content.Heading)
	if heading.Level != 1 || content.PlainText(heading.Runs) != "Title" {
		t.Errorf("heading = %+v", heading)
	}

	para := nodes[1].(content.Paragraph)
	if got := content.PlainText(para.Runs); got != "Hello bold and it code link (https://x.io)" {
		t.Errorf("paragraph text = %q", got)
	}
	var sawBold, sawItalic, sawCode, sawLink bool
	for _, run := range para.Runs {
		switch {
		case run.Bold && run.Text == "bold":
			sawBold = true
		case run.Italic && run.Text == "it":
			sawItalic = true
		case run.Code && run.Text == "code":
			sawCode = true
		case run.Hyperlink != nil && run.Hyperlink.Href == "https://x.io":
			sawLink = true
		}
	}
	if !sawBold || !sawItalic || !sawCode || !sawLink {
		t.Errorf("styled runs missing: bold=%v italic=%v code=%v link=%v", sawBold, sawItalic, sawCode, sawLink)
	}

	for i, want := range []string{"a", "b", "c"} {
		item := nodes[2+i].(content.ListItem)
		if item.Level != 0 || content.PlainText(item.Runs) != want {
			t.Errorf("list item %d = %+v, want %q at level 0", i, item, want)
		}
	}

	if code := nodes[5].(content.CodeBlock); code.Text != "x := 1" {
		t.Errorf("code = %q", code.Text)
	}
	if quote := nodes[6].(content.Quote); quote.Text != "quoted" {
		t.Errorf("quote = %q", quote.Text)
	}
	table := nodes[7].(content.Table)
	if strings.Join(table.Header, ",") != "h1,h2" || len(table.Rows) != 1 || strings.Join(table.Rows[0], ",") != "1,2" {
		t.Errorf("table = %+v", table)
	}
}

func TestFromMarkdownFallsBackToRawText(t *testing.T) {
	nodes := FromMarkdown("<div>raw</div>\n")
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(nodes))
	}
	para, ok := nodes[0].(content.Paragraph)
	if !ok || content.PlainText(para.Runs) != "<div>raw</div>" {
		t.Fatalf("fallback node = %#v", nodes[0])
	}
}

func TestFromMarkdownEmpty(t *testing.T) {
	nodes := FromMarkdown("")
	if nodes == nil || len(nodes) != 0 {
		t.Fatalf("FromMarkdown(\"\") = %#v, want empty slice", nodes)
	}
}

func TestFromContentTree(t *testing.T) {
	raw := `[
		{"type": "heading", "content": "Plan", "level": 9},
		{"type": "heading", "content": "Intro", "level": 0},
		{"type": "paragraph", "content": "Important", "style": "bold"},
		{"type": "bullet", "content": "- one\n- two"},
		{"type": "table", "content": "A | B\n---|---\n1 | 2"}
	]`
	nodes, err := FromContentTree([]byte(raw))
	if err != nil {
		t.Fatalf("FromContentTree() error = %v", err)
	}
	if len(nodes) != 6 {
		t.Fatalf("got %d nodes, want 6", len(nodes))
	}
	if h := nodes[0].(content.Heading); h.Level != 6 {
		t.Errorf("heading level = %d, want clamped to 6", h.Level)
	}
	if h := nodes[1].(content.Heading); h.Level != 1 {
		t.Errorf("heading level = %d, want clamped to 1", h.Level)
	}
	if p := nodes[2].(content.Paragraph); !p.Runs[0].Bold {
		t.Errorf("paragraph not bold: %+v", p)
	}
	if item := nodes[4].(content.ListItem); content.PlainText(item.Runs) != "two" {
		t.Errorf("second bullet = %+v", item)
	}
	table := nodes[5].(content.Table)
	if strings.Join(table.Header, ",") != "A,B" || strings.Join(table.Rows[0], ",") != "1,2" {
		t.Errorf("table = %+v", table)
	}
}

func TestFromContentTreeTolerantWrapping(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"fenced", "```json\n[{\"type\":\"paragraph\",\"content\":\"hi\"}]\n```"},
		{"object envelope", `{"content":[{"type":"paragraph","content":"hi"}]}`},
		{"surrounding prose", `Here you go: [{"type":"paragraph","content":"hi"}] Enjoy.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := FromContentTree([]byte(tt.raw))
			if err != nil {
				t.Fatalf("FromContentTree() error = %v", err)
			}
			if len(nodes) != 1 || content.Text(nodes[0]) != "hi" {
				t.Fatalf("nodes = %#v", nodes)
			}
		})
	}
}

func TestFromContentTreeGridTableKeepsRaggedRows(t *testing.T) {
	nodes, err := FromContentTree([]byte(`[{"type":"table","content":[["a","b"],["1"],["1","2","3"]]}]`))
	if err != nil {
		t.Fatalf("FromContentTree() error = %v", err)
	}
	table := nodes[0].(content.Table)
	if len(table.Rows) != 2 || len(table.Rows[0]) != 1 || len(table.Rows[1]) != 3 {
		t.Fatalf("table rows = %+v", table.Rows)
	}
}

func TestFromContentTreeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "I could not write that document."},
		{"unknown type", `[{"type":"image","content":"x"}]`},
		{"missing content", `[{"type":"paragraph"}]`},
		{"numeric content", `[{"type":"paragraph","content":42}]`},
		{"bad style", `[{"type":"paragraph","content":"x","style":"underline"}]`},
		{"fractional level", `[{"type":"heading","content":"x","level":1.5}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromContentTree([]byte(tt.raw))
			if !errors.Is(err, ErrInvalidContentTree) {
				t.Fatalf("error = %v, want ErrInvalidContentTree", err)
			}
		})
	}
}

func TestFromContentTreeConcurrentReplies(t *testing.T) {
	valid := `[{"type":"heading","content":"Plan","level":1},{"type":"paragraph","content":"Body"}]`
	invalid := `[{"type":"image","content":"x"}]`

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			nodes, err := FromContentTree([]byte(valid))
			if err != nil || len(nodes) != 2 {
				errs <- errors.Join(errors.New("valid reply rejected"), err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := FromContentTree([]byte(invalid)); !errors.Is(err, ErrInvalidContentTree) {
				errs <- errors.Join(errors.New("invalid reply accepted"), err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestWriteDOCXEmptyDocumentIsValid(t *testing.T) {
	data, err := WriteDOCX(nil, Meta{})
	if err != nil {
		t.Fatalf("WriteDOCX() error = %v", err)
	}
	parts := readParts(t, data)

	want := []string{
		"[Content_Types].xml",
		"_rels/.rels",
		"word/document.xml",
		"word/styles.xml",
		"word/_rels/document.xml.rels",
		"docProps/core.xml",
	}
	for _, name := range want {
		body, ok := parts[name]
		if !ok {
			t.Fatalf("missing part %s", name)
		}
		assertWellFormed(t, name, body)
	}
	if !strings.Contains(parts["word/document.xml"], "<w:p") {
		t.Error("empty document should carry one empty paragraph")
	}

	text, err := ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if strings.TrimSpace(text) != "" {
		t.Errorf("ExtractText() = %q, want empty", text)
	}
}

func TestWriteDOCXMarkdownRoundTrip(t *testing.T) {
	data, err := WriteDOCX(FromMarkdown(sampleMarkdown), Meta{Title: "Sample & Co"})
	if err != nil {
		t.Fatalf("WriteDOCX() error = %v", err)
	}
	parts := readParts(t, data)
	for name, body := range parts {
		if strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".rels") {
			assertWellFormed(t, name, body)
		}
	}

	doc := parts["word/document.xml"]
	for _, want := range []string{`"Heading1"`, `"ListBullet"`, `"ListBullet2"`, `"MacroText"`, `"Quote"`, `"TableGrid"`, "<w:tbl", "<w:b", "<w:i", "<w:hyperlink"} {
		if !strings.Contains(doc, want) {
			t.Errorf("document.xml missing %s", want)
		}
	}
	if !strings.Contains(parts["docProps/core.xml"], "Sample &amp; Co") {
		t.Error("core.xml title not escaped")
	}

	text, err := ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	for _, want := range []string{"Title", "Hello bold and it code link (https://x.io)", "x := 1", "quoted", "h1", "2"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q:\n%s", want, text)
		}
	}
}

func TestWriteDOCXStyleReferencesExist(t *testing.T) {
	nodes := []content.Node{
		content.Heading{Level: 12, Runs: []content.Run{content.Plain("deep")}},
		content.NewListItem(30, content.Plain("nested")),
	}
	data, err := WriteDOCX(nodes, Meta{})
	if err != nil {
		t.Fatalf("WriteDOCX() error = %v", err)
	}
	parts := readParts(t, data)
	doc := parts["word/document.xml"]
	if !strings.Contains(doc, `"Heading6"`) {
		t.Errorf("heading level not clamped: %s", doc)
	}
	if !strings.Contains(doc, `"ListBullet3"`) {
		t.Errorf("list level not clamped: %s", doc)
	}
	for _, id := range []string{"Heading6", "ListBullet3"} {
		if !strings.Contains(parts["word/styles.xml"], `w:styleId="`+id+`"`) {
			t.Errorf("styles.xml missing %s", id)
		}
	}
}

func TestWriteDOCXDeterministic(t *testing.T) {
	nodes := FromMarkdown(sampleMarkdown)
	first, err := WriteDOCX(nodes, Meta{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := WriteDOCX(nodes, Meta{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	a, b := readParts(t, first), readParts(t, second)
	for _, name := range []string{"word/document.xml", "docProps/core.xml"} {
		if a[name] != b[name] {
			t.Errorf("%s differs between runs", name)
		}
	}
}

func TestWriteDOCXDropsInvalidXMLRunes(t *testing.T) {
	data, err := WriteDOCX([]content.Node{content.NewParagraph(content.Plain("bell\x07 <tag>"))}, Meta{})
	if err != nil {
		t.Fatal(err)
	}
	text, err := ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "bell <tag>" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractTextReadsEditorSavedMarkup(t *testing.T) {
	body := `<w:document xmlns:w="` + nsW + `"><w:body>` +
		`<w:sdt><w:sdtContent><w:p><w:r><w:t>Inside a control</w:t></w:r></w:p></w:sdtContent></w:sdt>` +
		`<w:p><w:r><w:t xml:space="preserve">Keep </w:t></w:r>` +
		`<w:del w:id="1" w:author="Reviewer"><w:r><w:delText>removed </w:delText></w:r></w:del>` +
		`<w:ins w:id="2" w:author="Reviewer"><w:r><w:t>added</w:t></w:r></w:ins></w:p>` +
		`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	text, err := ExtractText(buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	want := "Inside a control\nKeep added\na\tb\nc"
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
}

func TestExtractTextRejectsNonDocx(t *testing.T) {
	if _, err := ExtractText([]byte("plain text")); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}

func readParts(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	parts := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		parts[f.Name] = string(body)
	}
	return parts
}

func assertWellFormed(t *testing.T, name, body string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("%s is not well-formed: %v", name, err)
		}
	}
}
