package app

import (
	"context"
	"fmt"

	"docbridge/internal/content"
	"docbridge/internal/export"
	"docbridge/internal/review"
	"docbridge/internal/store"
)

// creatorDocuments stores export documents as rows, with the content tree as JSON.
type creatorDocuments struct {
	store dataStore
}

func (d creatorDocuments) InsertDocument(ctx context.Context, doc export.Document) error {
	rec, err := toStoreDocument(doc)
	if err != nil {
		return err
	}
	return d.store.InsertDocument(ctx, rec)
}

func (d creatorDocuments) GetDocument(ctx context.Context, id string) (export.Document, error) {
	rec, err := d.store.GetDocument(ctx, id)
	if err != nil {
		return export.Document{}, err
	}
	return fromStoreDocument(rec)
}

func (d creatorDocuments) UpdateDocument(ctx context.Context, doc export.Document) error {
	rec, err := toStoreDocument(doc)
	if err != nil {
		return err
	}
	return d.store.UpdateDocument(ctx, rec)
}

func toStoreDocument(doc export.Document) (store.Document, error) {
	rec := store.Document{
		ID:        doc.ID,
		Key:       doc.Key,
		Title:     doc.Title,
		URL:       doc.URL,
		BlobName:  doc.BlobName,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.Nodes != nil {
		tree, err := content.Marshal(doc.Nodes)
		if err != nil {
			return store.Document{}, fmt.Errorf("encode content tree: %w", err)
		}
		rec.ContentTree = tree
	}
	return rec, nil
}

func fromStoreDocument(rec store.Document) (export.Document, error) {
	doc := export.Document{
		ID:        rec.ID,
		Key:       rec.Key,
		Title:     rec.Title,
		URL:       rec.URL,
		BlobName:  rec.BlobName,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if len(rec.ContentTree) > 0 {
		nodes, err := content.Unmarshal(rec.ContentTree)
		if err != nil {
			return export.Document{}, fmt.Errorf("decode content tree of %s: %w", rec.ID, err)
		}
		doc.Nodes = nodes
	}
	return doc, nil
}

// suggestionStore exposes suggestion rows to the review package.
type suggestionStore struct {
	store dataStore
}

func (s suggestionStore) ListSuggestions(ctx context.Context, documentID string) ([]review.Suggestion, error) {
	rows, err := s.store.ListSuggestions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]review.Suggestion, 0, len(rows))
	for _, row := range rows {
		out = append(out, review.Suggestion{
			ID:            row.ID,
			DocumentID:    row.DocumentID,
			OriginalText:  row.OriginalText,
			SuggestedText: row.SuggestedText,
			Description:   row.Description,
			IsResolved:    row.IsResolved,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out, nil
}

func (s suggestionStore) InsertSuggestions(ctx context.Context, suggestions []review.Suggestion) error {
	rows := make([]store.Suggestion, 0, len(suggestions))
	for _, sug := range suggestions {
		rows = append(rows, store.Suggestion{
			ID:            sug.ID,
			DocumentID:    sug.DocumentID,
			OriginalText:  sug.OriginalText,
			SuggestedText: sug.SuggestedText,
			Description:   sug.Description,
			IsResolved:    sug.IsResolved,
			CreatedAt:     sug.CreatedAt,
		})
	}
	return s.store.InsertSuggestions(ctx, rows)
}
