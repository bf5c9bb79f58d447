package store

import (
	"encoding/json"
	"time"
)

type Document struct {
	ID       string
	Key      string
	Title    string
	URL      string
	BlobName string
	// ContentTree is the JSON encoding of the document's content nodes, or nil
	// for uploaded documents.
	ContentTree json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Suggestion struct {
	ID            string
	DocumentID    string
	OriginalText  string
	SuggestedText string
	Description   string
	IsResolved    bool
	AppliedAt     *time.Time
	CreatedAt     time.Time
}
