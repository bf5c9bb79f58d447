// Package content defines the intermediate document tree shared by every codec.
//
// A document is an ordered list of block nodes. Inline styling lives in runs, the
// smallest styled unit; adjacent runs with the same style are not merged.
package content

import "strings"

// Kind identifies a block node variant.
type Kind string

const (
	KindHeading   Kind = "heading"
	KindParagraph Kind = "paragraph"
	KindListItem  Kind = "listItem"
	KindCodeBlock Kind = "codeBlock"
	KindQuote     Kind = "quote"
	KindTable     Kind = "table"
)

const (
	MinHeadingLevel = 1
	MaxHeadingLevel = 6
)

// Node is a block-level element. The set of implementations is closed.
type Node interface {
	Kind() Kind
	node()
}

// Link is a hyperlink target attached to a run.
type Link struct {
	Href string `json:"href"`
}

// Run is a span of text with uniform styling.
type Run struct {
	Text      string `json:"text"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Code      bool   `json:"code,omitempty"`
	Hyperlink *Link  `json:"hyperlink,omitempty"`
}

type Heading struct {
	Level int   `json:"level"`
	Runs  []Run `json:"runs"`
}

type Paragraph struct {
	Runs []Run `json:"runs"`
}

// ListItem is a bulleted paragraph. Level 0 is the outermost indent.
type ListItem struct {
	Runs  []Run `json:"runs"`
	Level int   `json:"level"`
}

type CodeBlock struct {
	Text string `json:"text"`
}

type Quote struct {
	Text string `json:"text"`
}

// Table is a grid whose rows may be shorter or longer than the header.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

func (Heading) Kind() Kind   { return KindHeading }
func (Paragraph) Kind() Kind { return KindParagraph }
func (ListItem) Kind() Kind  { return KindListItem }
func (CodeBlock) Kind() Kind { return KindCodeBlock }
func (Quote) Kind() Kind     { return KindQuote }
func (Table) Kind() Kind     { return KindTable }

func (Heading) node()   {}
func (Paragraph) node() {}
func (ListItem) node()  {}
func (CodeBlock) node() {}
func (Quote) node()     {}
func (Table) node()     {}

// ClampHeadingLevel forces level into the 1..6 range.
func ClampHeadingLevel(level int) int {
	if level < MinHeadingLevel {
		return MinHeadingLevel
	}
	if level > MaxHeadingLevel {
		return MaxHeadingLevel
	}
	return level
}

func NewHeading(level int, runs ...Run) Heading {
	return Heading{Level: ClampHeadingLevel(level), Runs: runs}
}

func NewParagraph(runs ...Run) Paragraph {
	return Paragraph{Runs: runs}
}

func NewListItem(level int, runs ...Run) ListItem {
	if level < 0 {
		level = 0
	}
	return ListItem{Runs: runs, Level: level}
}

// NewTable copies header and rows as given; ragged rows are kept.
func NewTable(header []string, rows [][]string) Table {
	if header == nil {
		header = []string{}
	}
	if rows == nil {
		rows = [][]string{}
	}
	return Table{Header: header, Rows: rows}
}

// Plain returns an unstyled run.
func Plain(text string) Run {
	return Run{Text: text}
}

// PlainText concatenates the text of runs.
func PlainText(runs []Run) string {
	var b strings.Builder
	for _, run := range runs {
		b.WriteString(run.Text)
	}
	return b.String()
}

// Text flattens a node into plain text. Table cells are tab separated.
func Text(n Node) string {
	switch v := n.(type) {
	case Heading:
		return PlainText(v.Runs)
	case Paragraph:
		return PlainText(v.Runs)
	case ListItem:
		return PlainText(v.Runs)
	case CodeBlock:
		return v.Text
	case Quote:
		return v.Text
	case Table:
		lines := make([]string, 0, len(v.Rows)+1)
		lines = append(lines, strings.Join(v.Header, "\t"))
		for _, row := range v.Rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		return strings.Join(lines, "\n")
	default:
		return ""
	}
}
