package export

import (
	"fmt"
	"html"
	"strings"

	"docbridge/internal/content"
)

// NodesToHTML renders a content tree as an HTML fragment for previews.
func NodesToHTML(nodes []content.Node) string {
	var result strings.Builder
	inList := false
	for _, n := range nodes {
		item, isItem := n.(content.ListItem)
		if isItem && !inList {
			result.WriteString("<ul>\n")
			inList = true
		}
		if !isItem && inList {
			result.WriteString("</ul>\n")
			inList = false
		}
		if isItem {
			fmt.Fprintf(&result, "<li style=\"margin-left: %dem\">%s</li>\n", item.Level*2, renderRuns(item.Runs))
			continue
		}
		result.WriteString(renderBlock(n))
	}
	if inList {
		result.WriteString("</ul>\n")
	}
	return result.String()
}

// renderBlock renders one non-list node to HTML
func renderBlock(n content.Node) string {
	switch v := n.(type) {
	case content.Heading:
		level := content.ClampHeadingLevel(v.Level)
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, renderRuns(v.Runs), level)
	case content.Paragraph:
		return fmt.Sprintf("<p>%s</p>\n", renderRuns(v.Runs))
	case content.CodeBlock:
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(v.Text))
	case content.Quote:
		text := strings.ReplaceAll(html.EscapeString(v.Text), "\n", "<br>")
		return fmt.Sprintf("<blockquote>\n<p>%s</p>\n</blockquote>\n", text)
	case content.Table:
		var b strings.Builder
		b.WriteString("<table>\n")
		if len(v.Header) > 0 {
			b.WriteString("<tr>\n")
			for _, cell := range v.Header {
				fmt.Fprintf(&b, "<th>%s</th>\n", html.EscapeString(cell))
			}
			b.WriteString("</tr>\n")
		}
		for _, row := range v.Rows {
			b.WriteString("<tr>\n")
			for _, cell := range row {
				fmt.Fprintf(&b, "<td>%s</td>\n", html.EscapeString(cell))
			}
			b.WriteString("</tr>\n")
		}
		b.WriteString("</table>\n")
		return b.String()
	default:
		return fmt.Sprintf("<p>%s</p>\n", html.EscapeString(content.Text(n)))
	}
}

// renderRuns renders runs with their formatting
func renderRuns(runs []content.Run) string {
	var result strings.Builder
	for _, run := range runs {
		if run.Text == "" {
			continue
		}
		htmlText := strings.ReplaceAll(html.EscapeString(run.Text), "\n", "<br>")
		if run.Code {
			htmlText = fmt.Sprintf("<code>%s</code>", htmlText)
		}
		if run.Italic {
			htmlText = fmt.Sprintf("<em>%s</em>", htmlText)
		}
		if run.Bold {
			htmlText = fmt.Sprintf("<strong>%s</strong>", htmlText)
		}
		if run.Hyperlink != nil {
			htmlText = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(run.Hyperlink.Href), htmlText)
		}
		result.WriteString(htmlText)
	}
	return result.String()
}
