package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"docbridge/internal/content"
)

// treeSchema constrains the block list a generator is asked to produce.
const treeSchema = `
#Block: {
	type:    "heading" | "paragraph" | "bullet" | "table"
	content: string | [...[...string]]
	level?:  int
	style?:  "bold" | "italic" | "code" | "normal"
	...
}

#Tree: [...#Block]
`


type treeBlock struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	Level   *int            `json:"level,omitempty"`
	Style   string          `json:"style,omitempty"`
}

// FromContentTree validates and converts a JSON content tree. Generator replies are
// tolerated when wrapped in code fences or in a {"content": [...]} object.
func FromContentTree(raw []byte) ([]content.Node, error) {
	data, err := treeJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := validateTree(data); err != nil {
		return nil, err
	}

	var blocks []treeBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContentTree, err)
	}

	nodes := make([]content.Node, 0, len(blocks))
	for i, b := range blocks {
		converted, err := b.nodes()
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrInvalidContentTree, i, err)
		}
		nodes = append(nodes, converted...)
	}
	return nodes, nil
}

// validateTree uses a fresh cue context per call. A cue context keeps every value
// compiled into it alive, and is not safe for concurrent use.
func validateTree(data []byte) error {
	cueCtx := cuecontext.New()
	schema := cueCtx.CompileString(treeSchema).LookupPath(cue.ParsePath("#Tree"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("content tree schema: %w", err)
	}
	value := cueCtx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContentTree, err)
	}
	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContentTree, err)
	}
	return nil
}

// treeJSON strips fences and unwraps an object envelope, returning the block array.
func treeJSON(raw []byte) ([]byte, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidContentTree)
	}

	switch text[0] {
	case '[':
		return []byte(text), nil
	case '{':
		var wrapper struct {
			Content json.RawMessage `json:"content"`
			Blocks  json.RawMessage `json:"blocks"`
		}
		if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidContentTree, err)
		}
		for _, inner := range []json.RawMessage{wrapper.Content, wrapper.Blocks} {
			if trimmed := bytes.TrimSpace(inner); len(trimmed) > 0 && trimmed[0] == '[' {
				return trimmed, nil
			}
		}
		return nil, fmt.Errorf("%w: object has no block array", ErrInvalidContentTree)
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array found", ErrInvalidContentTree)
	}
	return []byte(text[start : end+1]), nil
}

func (b treeBlock) nodes() ([]content.Node, error) {
	if b.Type == "table" {
		table, err := b.table()
		if err != nil {
			return nil, err
		}
		return []content.Node{table}, nil
	}

	var text string
	if err := json.Unmarshal(b.Content, &text); err != nil {
		return nil, fmt.Errorf("%s content must be a string", b.Type)
	}

	switch b.Type {
	case "heading":
		level := 1
		if b.Level != nil {
			level = *b.Level
		}
		return []content.Node{content.NewHeading(level, b.run(text))}, nil
	case "paragraph":
		return []content.Node{content.NewParagraph(b.run(text))}, nil
	case "bullet":
		level := 0
		if b.Level != nil {
			level = *b.Level
		}
		var items []content.Node
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimSpace(strings.TrimLeft(line, "-*•"))
			if line == "" {
				continue
			}
			items = append(items, content.NewListItem(level, b.run(line)))
		}
		if len(items) == 0 {
			items = append(items, content.NewListItem(level, b.run("")))
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", b.Type)
	}
}

func (b treeBlock) run(text string) content.Run {
	run := content.Plain(text)
	switch b.Style {
	case "bold":
		run.Bold = true
	case "italic":
		run.Italic = true
	case "code":
		run.Code = true
	}
	return run
}

// table accepts either a grid of strings or pipe-delimited text, one row per line.
// The first row is the header.
func (b treeBlock) table() (content.Table, error) {
	var grid [][]string
	if err := json.Unmarshal(b.Content, &grid); err != nil {
		var text string
		if err := json.Unmarshal(b.Content, &text); err != nil {
			return content.Table{}, fmt.Errorf("table content must be a string or a grid")
		}
		grid = parsePipeRows(text)
	}
	if len(grid) == 0 {
		return content.NewTable(nil, nil), nil
	}
	return content.NewTable(grid[0], grid[1:]), nil
}

func parsePipeRows(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isSeparatorRow(line) {
			continue
		}
		line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
		parts := strings.Split(line, "|")
		cells := make([]string, 0, len(parts))
		for _, p := range parts {
			cells = append(cells, strings.TrimSpace(p))
		}
		rows = append(rows, cells)
	}
	return rows
}

func isSeparatorRow(line string) bool {
	return strings.Trim(line, "|-: ") == "" && strings.Contains(line, "-")
}
