// Package review fetches AI suggestions for a document and applies them to a live
// editor session as tracked changes.
package review

import (
	"context"
	"errors"
	"time"
)

// Suggestion is an AI-proposed substitution keyed to a document. OriginalText is
// expected to occur verbatim in the document but this is not guaranteed.
type Suggestion struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	OriginalText  string    `json:"originalText"`
	SuggestedText string    `json:"suggestedText"`
	Description   string    `json:"description,omitempty"`
	IsResolved    bool      `json:"isResolved"`
	CreatedAt     time.Time `json:"createdAt"`
}

// State is the orchestrator state of one editing session.
type State int

const (
	StateIdle State = iota
	StateSuggestionsLoading
	StateAwaitingDocumentReady
	StateApplying
	StateApplied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSuggestionsLoading:
		return "suggestions_loading"
	case StateAwaitingDocumentReady:
		return "awaiting_document_ready"
	case StateApplying:
		return "applying"
	case StateApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// ApplicationState holds the three flags that gate applying.
type ApplicationState struct {
	SuggestionsLoaded bool `json:"suggestionsLoaded"`
	DocumentReady     bool `json:"documentReady"`
	Applied           bool `json:"applied"`
}

// SuggestionSource lists suggestions in a stable order.
type SuggestionSource interface {
	ListSuggestions(ctx context.Context, documentID string) ([]Suggestion, error)
}

// Ledger records which suggestions have been dispatched to an editor.
type Ledger interface {
	Applied(ctx context.Context, documentID, suggestionID string) (bool, error)
	MarkApplied(ctx context.Context, documentID, suggestionID string) error
}

var (
	// ErrNoExtractableText means the document has no text to review.
	ErrNoExtractableText = errors.New("document has no extractable text")
	// ErrRateLimited means the suggestion generator refused for rate limiting.
	ErrRateLimited = errors.New("suggestion generation rate limited")
	// ErrReview covers other suggestion generation failures.
	ErrReview = errors.New("document review failed")
	// ErrConnectorUnavailable means a session is ready to apply but no live editor
	// connection exists for it.
	ErrConnectorUnavailable = errors.New("editor connector unavailable")
	// ErrSessionConflict means a session id is already bound to another document.
	ErrSessionConflict = errors.New("session belongs to another document")
)
