package export

import (
	"html/template"
	"strings"
	"testing"
	"time"

	"docbridge/internal/content"
)

func TestNodesToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    []content.Node
		expected string
	}{
		{
			name:     "nil input",
			input:    nil,
			expected: "",
		},
		{
			name:     "simple paragraph",
			input:    []content.Node{content.NewParagraph(content.Plain("Hello world"))},
			expected: "<p>Hello world</p>",
		},
		{
			name:     "heading with levels",
			input:    []content.Node{content.NewHeading(2, content.Plain("Section Title"))},
			expected: "<h2>Section Title</h2>",
		},
		{
			name:     "bold and italic text",
			input:    []content.Node{content.NewParagraph(content.Run{Text: "Bold and italic", Bold: true, Italic: true})},
			expected: "<strong><em>Bold and italic</em></strong>",
		},
		{
			name: "bullet list",
			input: []content.Node{
				content.NewListItem(0, content.Plain("Item 1")),
				content.NewListItem(0, content.Plain("Item 2")),
			},
			expected: "<ul>",
		},
		{
			name:     "link",
			input:    []content.Node{content.NewParagraph(content.Run{Text: "docs", Hyperlink: &content.Link{Href: "https://example.com"}})},
			expected: `<a href="https://example.com">docs</a>`,
		},
		{
			name:     "code block escapes markup",
			input:    []content.Node{content.CodeBlock{Text: "if a < b {}"}},
			expected: "<pre><code>if a &lt; b {}</code></pre>",
		},
		{
			name:     "table header",
			input:    []content.Node{content.NewTable([]string{"Name"}, [][]string{{"Ada"}})},
			expected: "<th>Name</th>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NodesToHTML(tt.input)
			if tt.expected == "" {
				if result != "" {
					t.Errorf("NodesToHTML() = %q, want empty", result)
				}
				return
			}
			if !strings.Contains(result, tt.expected) {
				t.Errorf("NodesToHTML() = %q, want to contain %q", result, tt.expected)
			}
		})
	}
}

func TestNodesToHTMLClosesList(t *testing.T) {
	html := NodesToHTML([]content.Node{
		content.NewListItem(0, content.Plain("a")),
		content.NewParagraph(content.Plain("after")),
	})
	if strings.Index(html, "</ul>") > strings.Index(html, "<p>after</p>") {
		t.Fatalf("list not closed before paragraph: %q", html)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple Title", "Simple-Title"},
		{"Title/With:Special*Chars", "TitleWithSpecialChars"},
		{"", "document"},
		{"!!!", "document"},
		{"Résumé draft", "Résumé-draft"},
		{"a_b-c", "a_b-c"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBlobName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	tests := []struct {
		title    string
		expected string
	}{
		{"Quarterly  Report", "Quarterly_Report_1700000000123.docx"},
		{"  padded\ttitle ", "padded_title_1700000000123.docx"},
		{"a/b\\c", "abc_1700000000123.docx"},
		{"", "document_1700000000123.docx"},
	}
	for _, tt := range tests {
		if got := BlobName(tt.title, at); got != tt.expected {
			t.Errorf("BlobName(%q) = %q, want %q", tt.title, got, tt.expected)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderHTML(t *testing.T) {
	data := TemplateData{
		Title:       "Test Document",
		ContentHTML: template.HTML("<p>This is the content.</p>"),
		Author:      "Test Author",
		UpdatedAt:   time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
		Suggestions: []TemplateSuggestion{
			{OriginalText: "teh", SuggestedText: "the", Description: "Typo"},
		},
	}

	html, err := RenderHTML(data)
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}

	if !strings.Contains(html, "Test Document") {
		t.Error("HTML missing title")
	}
	if !strings.Contains(html, "Mar 5, 2024") {
		t.Error("HTML missing date")
	}
	if !strings.Contains(html, "Pending suggestions") || !strings.Contains(html, "Typo") {
		t.Error("HTML missing suggestions section")
	}
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("HTML content was escaped - should be rendered as raw HTML")
	}
	if !strings.Contains(html, "<p>This is the content.</p>") {
		t.Error("HTML content should contain unescaped <p> tags")
	}
}
