// Package connector reaches the scripting interface of a live editor session.
//
// The editor runs in the user's browser; a small plugin on the editor page opens a
// websocket back to this service and relays method calls to the editor's
// connector, returning each result.
package connector

import (
	"context"
	"encoding/json"
	"errors"
)

// Connector executes one scripting method against a live editor session.
type Connector interface {
	ExecuteMethod(ctx context.Context, name string, args any) (json.RawMessage, error)
}

const (
	MethodSearchAndReplace = "SearchAndReplace"
	MethodSearchNext       = "SearchNext"
	MethodGetAllComments   = "GetAllComments"
	MethodAddComment       = "AddComment"
	MethodSetTrackChanges  = "SetTrackRevisions"
)

// EventDocumentReady is sent by the editor page once the document is interactive.
const EventDocumentReady = "documentReady"

var (
	// ErrClosed is returned for calls on, or pending on, a closed connection.
	ErrClosed = errors.New("connector closed")
	// ErrRemote wraps an error reported by the editor page.
	ErrRemote = errors.New("connector method failed")
)

type SearchAndReplaceArgs struct {
	SearchString  string `json:"searchString"`
	ReplaceString string `json:"replaceString"`
	MatchCase     bool   `json:"matchCase"`
}

type SearchNextArgs struct {
	SearchString string `json:"searchString"`
	MatchCase    bool   `json:"matchCase"`
}

// Comment uses the editor's field names.
type Comment struct {
	Text     string `json:"Text"`
	UserName string `json:"UserName"`
}

// DecodeComments reads a GetAllComments result. Entries may be flat or nest their
// fields under "Data"; null decodes to no comments.
func DecodeComments(raw json.RawMessage) ([]Comment, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var entries []struct {
		Comment
		Data *Comment `json:"Data"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	comments := make([]Comment, 0, len(entries))
	for _, e := range entries {
		if e.Data != nil {
			comments = append(comments, *e.Data)
			continue
		}
		comments = append(comments, e.Comment)
	}
	return comments, nil
}

// message is the wire format in both directions.
type message struct {
	Type   string          `json:"type"`
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Args   any             `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
}

const (
	typeExecute = "execute"
	typeResult  = "result"
	typeEvent   = "event"
)
