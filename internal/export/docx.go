package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"

	"docbridge/internal/content"
)

// listStyles are the bullet paragraph styles of the default template, by depth.
var listStyles = []string{"ListBullet", "ListBullet2", "ListBullet3"}

const (
	codeStyle  = "MacroText"
	quoteStyle = "Quote"
	tableStyle = "TableGrid"
	codeFont   = "Courier New"
)

// WriteDOCX serialises nodes into a WordprocessingML package. An empty node list
// yields a valid document with one empty paragraph.
func WriteDOCX(nodes []content.Node, meta Meta) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("new docx: %w", err)
	}

	lastTable := false
	for _, n := range nodes {
		if lastTable, err = addNode(doc, n); err != nil {
			return nil, err
		}
	}
	// a body must not be empty or end on a table
	if len(nodes) == 0 || lastTable {
		doc.AddParagraph("")
	}
	doc.FileMap.Store("docProps/core.xml", []byte(coreXML(meta)))

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return buf.Bytes(), nil
}

// addNode appends one block and reports whether it was a table.
func addNode(doc *docx.RootDoc, n content.Node) (bool, error) {
	switch v := n.(type) {
	case content.Heading:
		p, err := doc.AddHeading("", uint(content.ClampHeadingLevel(v.Level)))
		if err != nil {
			return false, fmt.Errorf("add heading: %w", err)
		}
		addRuns(p, v.Runs)
	case content.Paragraph:
		addRuns(doc.AddParagraph(""), v.Runs)
	case content.ListItem:
		level := v.Level
		if level >= len(listStyles) {
			level = len(listStyles) - 1
		}
		p := doc.AddParagraph("")
		p.Style(listStyles[level])
		addRuns(p, v.Runs)
	case content.CodeBlock:
		// one paragraph per line keeps line breaks without break runs
		for _, line := range strings.Split(v.Text, "\n") {
			p := doc.AddParagraph("")
			p.Style(codeStyle)
			addRuns(p, []content.Run{{Text: line, Code: true}})
		}
	case content.Quote:
		for _, line := range strings.Split(v.Text, "\n") {
			p := doc.AddParagraph("")
			p.Style(quoteStyle)
			addRuns(p, []content.Run{content.Plain(line)})
		}
	case content.Table:
		return addTable(doc, v), nil
	default:
		// keep whatever text the node carries
		addRuns(doc.AddParagraph(""), []content.Run{content.Plain(content.Text(n))})
	}
	return false, nil
}

func addRuns(p *docx.Paragraph, runs []content.Run) {
	for _, run := range runs {
		text := cleanText(run.Text)
		if text == "" {
			continue
		}
		if run.Hyperlink != nil {
			p.AddLink(text, run.Hyperlink.Href)
			continue
		}
		r := p.AddText(text)
		if run.Bold {
			r.Bold(true)
		}
		if run.Italic {
			r.Italic(true)
		}
		if run.Code {
			r.Font(codeFont)
		}
	}
}

// addTable renders cells as given; short rows stay short. It reports whether a
// table was written.
func addTable(doc *docx.RootDoc, t content.Table) bool {
	if len(t.Header) == 0 && len(t.Rows) == 0 {
		doc.AddParagraph("")
		return false
	}

	tbl := doc.AddTable()
	tbl.Style(tableStyle)
	addRow := func(cells []string, header bool) {
		row := tbl.AddRow()
		if len(cells) == 0 {
			cells = []string{""}
		}
		for _, cell := range cells {
			p := row.AddCell().AddParagraph("")
			addRuns(p, []content.Run{{Text: cell, Bold: header}})
		}
	}
	if len(t.Header) > 0 {
		addRow(t.Header, true)
	}
	for _, row := range t.Rows {
		addRow(row, false)
	}
	return true
}

// cleanText folds soft line breaks into spaces and drops runes XML 1.0 cannot carry.
func cleanText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		case r >= 0xD800 && r <= 0xDFFF:
			return -1
		}
		return r
	}, s)
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(cleanText(s)))
	return buf.String()
}

func coreXML(meta Meta) string {
	title := meta.Title
	if title == "" {
		title = "Untitled"
	}
	creator := meta.Creator
	if creator == "" {
		creator = "docbridge"
	}
	return xml.Header +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + escapeXML(title) + `</dc:title>` +
		`<dc:creator>` + escapeXML(creator) + `</dc:creator>` +
		`</cp:coreProperties>`
}
