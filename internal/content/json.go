package content

import (
	"encoding/json"
	"fmt"
)

// envelope is the stored form of a node: a kind tag plus the variant's fields.
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Marshal encodes a node list with kind tags so it can be decoded back by Unmarshal.
func Marshal(nodes []Node) ([]byte, error) {
	items := make([]envelope, 0, len(nodes))
	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("marshal %s node: %w", n.Kind(), err)
		}
		items = append(items, envelope{Kind: n.Kind(), Data: data})
	}
	return json.Marshal(items)
}

// Unmarshal decodes the output of Marshal. Unknown kinds are an error.
func Unmarshal(raw []byte) ([]Node, error) {
	if len(raw) == 0 {
		return []Node{}, nil
	}
	var items []envelope
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode content tree: %w", err)
	}
	nodes := make([]Node, 0, len(items))
	for i, item := range items {
		n, err := decodeNode(item)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decodeNode(item envelope) (Node, error) {
	switch item.Kind {
	case KindHeading:
		var v Heading
		if err := json.Unmarshal(item.Data, &v); err != nil {
			return nil, err
		}
		v.Level = ClampHeadingLevel(v.Level)
		return v, nil
	case KindParagraph:
		var v Paragraph
		err := json.Unmarshal(item.Data, &v)
		return v, err
	case KindListItem:
		var v ListItem
		if err := json.Unmarshal(item.Data, &v); err != nil {
			return nil, err
		}
		return NewListItem(v.Level, v.Runs...), nil
	case KindCodeBlock:
		var v CodeBlock
		err := json.Unmarshal(item.Data, &v)
		return v, err
	case KindQuote:
		var v Quote
		err := json.Unmarshal(item.Data, &v)
		return v, err
	case KindTable:
		var v Table
		if err := json.Unmarshal(item.Data, &v); err != nil {
			return nil, err
		}
		return NewTable(v.Header, v.Rows), nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", item.Kind)
	}
}
