package export

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"docbridge/internal/content"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// FromMarkdown converts Markdown source into content nodes. Block types it does not
// recognise become paragraphs of their raw text, so no content is dropped.
func FromMarkdown(src string) []content.Node {
	source := []byte(src)
	root := markdown.Parser().Parse(text.NewReader(source))
	c := &mdConverter{source: source, nodes: []content.Node{}}
	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		c.block(child)
	}
	return c.nodes
}

type mdConverter struct {
	source []byte
	nodes  []content.Node
}

func (c *mdConverter) block(n ast.Node) {
	switch v := n.(type) {
	case *ast.Heading:
		c.nodes = append(c.nodes, content.NewHeading(v.Level, c.inlineRuns(v, content.Run{})...))
	case *ast.Paragraph, *ast.TextBlock:
		runs := c.inlineRuns(v, content.Run{})
		if len(runs) == 0 {
			return
		}
		c.nodes = append(c.nodes, content.NewParagraph(runs...))
	case *ast.List:
		c.list(v)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		c.nodes = append(c.nodes, content.CodeBlock{Text: strings.TrimRight(c.lines(v), "\n")})
	case *ast.Blockquote:
		c.nodes = append(c.nodes, content.Quote{Text: c.blockText(v)})
	case *east.Table:
		c.nodes = append(c.nodes, c.table(v))
	case *ast.ThematicBreak:
		c.nodes = append(c.nodes, content.NewParagraph(content.Plain("---")))
	default:
		raw := strings.TrimRight(c.raw(n), "\n")
		if raw == "" {
			return
		}
		c.nodes = append(c.nodes, content.NewParagraph(content.Plain(raw)))
	}
}

// list emits one bullet per item. Nested lists are flattened to the outer level and
// follow their parent item.
func (c *mdConverter) list(list *ast.List) {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var runs []content.Run
		var nested []*ast.List
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			switch v := child.(type) {
			case *ast.List:
				nested = append(nested, v)
			case *ast.Paragraph, *ast.TextBlock:
				if len(runs) > 0 {
					runs = append(runs, content.Plain(" "))
				}
				runs = append(runs, c.inlineRuns(v, content.Run{})...)
			default:
				if raw := strings.TrimSpace(c.raw(v)); raw != "" {
					if len(runs) > 0 {
						runs = append(runs, content.Plain(" "))
					}
					runs = append(runs, content.Plain(raw))
				}
			}
		}
		c.nodes = append(c.nodes, content.NewListItem(0, runs...))
		for _, sub := range nested {
			c.list(sub)
		}
	}
}

func (c *mdConverter) table(t *east.Table) content.Table {
	var header []string
	var rows [][]string
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		cells := make([]string, 0, row.ChildCount())
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(content.PlainText(c.inlineRuns(cell, content.Run{}))))
		}
		if _, ok := row.(*east.TableHeader); ok && header == nil {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	return content.NewTable(header, rows)
}

// inlineRuns walks inline children of n, carrying the inherited style down.
func (c *mdConverter) inlineRuns(n ast.Node, style content.Run) []content.Run {
	var runs []content.Run
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		runs = append(runs, c.inline(child, style)...)
	}
	return runs
}

func (c *mdConverter) inline(n ast.Node, style content.Run) []content.Run {
	switch v := n.(type) {
	case *ast.Text:
		value := string(v.Segment.Value(c.source))
		if v.HardLineBreak() {
			value += "\n"
		} else if v.SoftLineBreak() {
			value += " "
		}
		return []content.Run{styled(style, value)}
	case *ast.String:
		return []content.Run{styled(style, string(v.Value))}
	case *ast.Emphasis:
		next := style
		if v.Level >= 2 {
			next.Bold = true
		} else {
			next.Italic = true
		}
		return c.inlineRuns(v, next)
	case *ast.CodeSpan:
		next := style
		next.Code = true
		return []content.Run{styled(next, content.PlainText(c.inlineRuns(v, content.Run{})))}
	case *ast.Link:
		label := content.PlainText(c.inlineRuns(v, content.Run{}))
		href := string(v.Destination)
		next := style
		next.Hyperlink = &content.Link{Href: href}
		return []content.Run{styled(next, label+" ("+href+")")}
	case *ast.AutoLink:
		url := string(v.URL(c.source))
		next := style
		next.Hyperlink = &content.Link{Href: url}
		return []content.Run{styled(next, string(v.Label(c.source)))}
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < v.Segments.Len(); i++ {
			seg := v.Segments.At(i)
			b.Write(seg.Value(c.source))
		}
		return []content.Run{styled(style, b.String())}
	default:
		return c.inlineRuns(v, style)
	}
}

func styled(style content.Run, value string) content.Run {
	run := style
	run.Text = value
	return run
}

// blockText flattens all descendant blocks into newline separated plain text.
func (c *mdConverter) blockText(n ast.Node) string {
	var parts []string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch v := child.(type) {
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
			parts = append(parts, content.PlainText(c.inlineRuns(v, content.Run{})))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			parts = append(parts, strings.TrimRight(c.lines(v), "\n"))
		default:
			if child.Type() == ast.TypeBlock && child.HasChildren() {
				parts = append(parts, c.blockText(child))
				continue
			}
			parts = append(parts, strings.TrimRight(c.raw(child), "\n"))
		}
	}
	return strings.Join(parts, "\n")
}

func (c *mdConverter) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(c.source))
	}
	return b.String()
}

// raw recovers the source text of a block, falling back to its inline text.
func (c *mdConverter) raw(n ast.Node) string {
	if n.Type() == ast.TypeBlock {
		if value := c.lines(n); value != "" {
			return value
		}
		if n.HasChildren() {
			return c.blockText(n)
		}
		return ""
	}
	return content.PlainText(c.inline(n, content.Run{}))
}
