package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `id, key, title, url, blob_name, content_tree, created_at, updated_at`

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, doc.ID, doc.Key, doc.Title, doc.URL, doc.BlobName, nullJSON(doc.ContentTree), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	return scanDocument(row)
}

// GetDocumentByKey finds the document currently open in the editor under key.
func (s *PostgresStore) GetDocumentByKey(ctx context.Context, key string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE key=$1`, key)
	return scanDocument(row)
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc Document) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET key=$2, title=$3, url=$4, blob_name=$5, content_tree=$6, updated_at=$7
		WHERE id=$1
	`, doc.ID, doc.Key, doc.Title, doc.URL, doc.BlobName, nullJSON(doc.ContentTree), doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return expectOne(res, "update document")
}

// UpdateDocumentURL points a document at new bytes, e.g. after a save-back.
func (s *PostgresStore) UpdateDocumentURL(ctx context.Context, id, url string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET url=$2, updated_at=$3 WHERE id=$1`, id, url, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update document url: %w", err)
	}
	return expectOne(res, "update document url")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var tree []byte
	err := row.Scan(&doc.ID, &doc.Key, &doc.Title, &doc.URL, &doc.BlobName, &tree, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document: %w", ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("scan document: %w", err)
	}
	if len(tree) > 0 {
		doc.ContentTree = tree
	}
	return doc, nil
}

// ListSuggestions returns the unresolved suggestions of a document in creation
// order. Ties on created_at are broken by id so the order is stable.
func (s *PostgresStore) ListSuggestions(ctx context.Context, documentID string) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, original_text, suggested_text, description, is_resolved, applied_at, created_at
		FROM suggestions
		WHERE document_id=$1 AND is_resolved=false
		ORDER BY created_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := make([]Suggestion, 0)
	for rows.Next() {
		var sug Suggestion
		var appliedAt sql.NullTime
		if err := rows.Scan(&sug.ID, &sug.DocumentID, &sug.OriginalText, &sug.SuggestedText,
			&sug.Description, &sug.IsResolved, &appliedAt, &sug.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		if appliedAt.Valid {
			t := appliedAt.Time
			sug.AppliedAt = &t
		}
		suggestions = append(suggestions, sug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return suggestions, nil
}

// InsertSuggestions stores a batch atomically.
func (s *PostgresStore) InsertSuggestions(ctx context.Context, suggestions []Suggestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin suggestions tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, sug := range suggestions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO suggestions (id, document_id, original_text, suggested_text, description, is_resolved, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, sug.ID, sug.DocumentID, sug.OriginalText, sug.SuggestedText, sug.Description, sug.IsResolved, sug.CreatedAt); err != nil {
			return fmt.Errorf("insert suggestion %s: %w", sug.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit suggestions: %w", err)
	}
	return nil
}

// ResolveSuggestion marks a suggestion as handled by the author.
func (s *PostgresStore) ResolveSuggestion(ctx context.Context, documentID, suggestionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE suggestions SET is_resolved=true WHERE document_id=$1 AND id=$2`, documentID, suggestionID)
	if err != nil {
		return fmt.Errorf("resolve suggestion: %w", err)
	}
	return expectOne(res, "resolve suggestion")
}

// Applied reports whether a suggestion was already dispatched to an editor.
func (s *PostgresStore) Applied(ctx context.Context, documentID, suggestionID string) (bool, error) {
	var applied bool
	err := s.db.QueryRowContext(ctx, `
		SELECT applied_at IS NOT NULL FROM suggestions WHERE document_id=$1 AND id=$2
	`, documentID, suggestionID).Scan(&applied)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read applied state: %w", err)
	}
	return applied, nil
}

// MarkApplied records the first dispatch of a suggestion.
func (s *PostgresStore) MarkApplied(ctx context.Context, documentID, suggestionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET applied_at=$3
		WHERE document_id=$1 AND id=$2 AND applied_at IS NULL
	`, documentID, suggestionID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark suggestion applied: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// nullJSON binds a JSONB parameter as text.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
