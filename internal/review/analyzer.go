package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docbridge/internal/llm"
)

// DocumentText returns the plain text of a stored document.
type DocumentText interface {
	DocumentText(ctx context.Context, documentID string) (string, error)
}

// SuggestionStore persists suggestions produced by the Analyzer.
type SuggestionStore interface {
	SuggestionSource
	InsertSuggestions(ctx context.Context, suggestions []Suggestion) error
}

// Analyzer asks a language model for edits to a document and stores those whose
// anchor text actually occurs in it.
type Analyzer struct {
	docs   DocumentText
	store  SuggestionStore
	gen    llm.Generator
	logger *zap.Logger
	now    func() time.Time
}

func NewAnalyzer(docs DocumentText, store SuggestionStore, gen llm.Generator, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{docs: docs, store: store, gen: gen, logger: logger, now: time.Now}
}

const reviewSystem = `You are a careful copy editor reviewing a business document.
Return a JSON array of suggested edits and nothing else. Each element is an object:
{"originalText": "...", "suggestedText": "...", "description": "..."}
originalText must be copied exactly, character for character, from the document and be
short enough to be unique (one sentence or phrase). suggestedText replaces it.
description briefly explains the edit for the author. Return [] if nothing needs changing.`

type proposedEdit struct {
	OriginalText  string `json:"originalText"`
	SuggestedText string `json:"suggestedText"`
	Description   string `json:"description"`
}

// Analyze reviews a document and returns the stored suggestions.
func (a *Analyzer) Analyze(ctx context.Context, documentID string) ([]Suggestion, error) {
	if a.gen == nil {
		return nil, fmt.Errorf("%w: no generator configured", ErrReview)
	}

	text, err := a.docs.DocumentText(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReview, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoExtractableText
	}

	reply, err := a.gen.GenerateText(ctx, reviewSystem, "Document:\n\n"+text)
	if err != nil {
		if llm.IsRateLimited(err) {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrReview, err)
	}

	edits, err := llm.DecodeJSON[[]proposedEdit](reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReview, err)
	}

	now := a.now().UTC()
	suggestions := make([]Suggestion, 0, len(edits))
	for i, e := range edits {
		if e.OriginalText == "" || e.OriginalText == e.SuggestedText {
			continue
		}
		if !strings.Contains(text, e.OriginalText) {
			a.logger.Debug("dropping suggestion with unknown anchor", zap.String("document_id", documentID))
			continue
		}
		suggestions = append(suggestions, Suggestion{
			ID:            uuid.NewString(),
			DocumentID:    documentID,
			OriginalText:  e.OriginalText,
			SuggestedText: e.SuggestedText,
			Description:   e.Description,
			// keeps fetch order equal to the model's order
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if len(suggestions) > 0 {
		if err := a.store.InsertSuggestions(ctx, suggestions); err != nil {
			return nil, err
		}
	}
	a.logger.Info("document reviewed",
		zap.String("document_id", documentID),
		zap.Int("proposed", len(edits)),
		zap.Int("kept", len(suggestions)),
	)
	return suggestions, nil
}
