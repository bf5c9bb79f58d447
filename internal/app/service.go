package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docbridge/internal/archive"
	"docbridge/internal/auth"
	"docbridge/internal/blob"
	"docbridge/internal/config"
	"docbridge/internal/connector"
	"docbridge/internal/editor"
	"docbridge/internal/export"
	"docbridge/internal/llm"
	"docbridge/internal/review"
	"docbridge/internal/store"
)

// Status values the editor posts to the save-back callback.
const (
	CallbackStatusEditing     = 1
	CallbackStatusReadyToSave = 2
)

type dataStore interface {
	Ping(context.Context) error
	InsertDocument(context.Context, store.Document) error
	GetDocument(context.Context, string) (store.Document, error)
	GetDocumentByKey(context.Context, string) (store.Document, error)
	UpdateDocument(context.Context, store.Document) error
	UpdateDocumentURL(context.Context, string, string) error
	ListSuggestions(context.Context, string) ([]store.Suggestion, error)
	InsertSuggestions(context.Context, []store.Suggestion) error
	ResolveSuggestion(context.Context, string, string) error
	Applied(context.Context, string, string) (bool, error)
	MarkApplied(context.Context, string, string) error
}

type fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type archiver interface {
	Save(key string, data []byte) (archive.Commit, error)
	History(key string, limit int) ([]archive.Commit, error)
	Version(key, hash string) ([]byte, error)
}

// Dependencies are the collaborators a Service is built from. Generator and
// Ledger are optional.
type Dependencies struct {
	Store     dataStore
	Blobs     blob.Store
	Fetcher   fetcher
	Archive   archiver
	Generator llm.Generator
	Signer    *auth.Signer
	// Ledger defaults to the suggestion table.
	Ledger review.Ledger
	Logger *zap.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	blobs    blob.Store
	fetcher  fetcher
	archive  archiver
	signer   *auth.Signer
	creator  *export.Creator
	analyzer *review.Analyzer
	sessions *review.Manager
	bridge   *connector.Bridge
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New wires a Service. Editing sessions it creates live no longer than ctx.
func New(ctx context.Context, cfg config.Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	signer := deps.Signer
	if signer == nil {
		signer = auth.NewSigner(cfg.EditorJWTSecret)
	}
	fetch := deps.Fetcher
	if fetch == nil {
		fetch = blob.NewHTTPFetcher(30 * time.Second)
	}
	ledger := deps.Ledger
	if ledger == nil {
		ledger = deps.Store
	}

	var gen export.Generator
	if deps.Generator != nil {
		gen = deps.Generator
	}
	creator := export.NewCreator(creatorDocuments{store: deps.Store}, deps.Blobs, gen, logger.Named("export"))
	suggestions := suggestionStore{store: deps.Store}
	manager := review.NewManager(ctx, suggestions, ledger, review.Options{
		Spacing:    cfg.ApplySpacing,
		AckTimeout: cfg.ApplyAckTimeout,
		Logger:     logger.Named("review"),
	})

	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		blobs:    deps.Blobs,
		fetcher:  fetch,
		archive:  deps.Archive,
		signer:   signer,
		creator:  creator,
		analyzer: review.NewAnalyzer(creator, suggestions, deps.Generator, logger.Named("review")),
		sessions: manager,
		bridge:   connector.NewBridge(manager, logger.Named("connector")),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Close unmounts every live editing session.
func (s *Service) Close() {
	s.sessions.Close()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bridge is the websocket endpoint editor pages connect to.
func (s *Service) Bridge() http.Handler {
	return s.bridge
}

type CreateDocumentInput struct {
	Title     string `json:"title"`
	Markdown  string `json:"markdown"`
	SourceURL string `json:"sourceUrl"`
	Prompt    string `json:"prompt"`
}

type DocumentView struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDocumentView(doc export.Document) DocumentView {
	return DocumentView{
		ID:        doc.ID,
		Key:       doc.Key,
		Title:     doc.Title,
		URL:       doc.URL,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// CreateDocument picks the creation path from the input: an uploaded file, then
// Markdown, then generation from a prompt.
func (s *Service) CreateDocument(ctx context.Context, in CreateDocumentInput) (DocumentView, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return DocumentView{}, validationError("title is required")
	}

	var (
		doc export.Document
		err error
	)
	switch {
	case strings.TrimSpace(in.SourceURL) != "":
		doc, err = s.creator.RegisterUpload(ctx, title, in.SourceURL)
	case in.Markdown != "":
		doc, err = s.creator.CreateFromMarkdown(ctx, title, in.Markdown)
	default:
		doc, err = s.creator.CreateFromPrompt(ctx, title, in.Prompt)
	}
	if err != nil {
		return DocumentView{}, err
	}
	s.logger.Info("document created", zap.String("document_id", doc.ID), zap.String("title", doc.Title))
	return toDocumentView(doc), nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (DocumentView, error) {
	rec, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return DocumentView{}, err
	}
	doc, err := fromStoreDocument(rec)
	if err != nil {
		return DocumentView{}, err
	}
	return toDocumentView(doc), nil
}

// ReviseDocument regenerates a document. When generation fails the existing
// document is reported in the error details.
func (s *Service) ReviseDocument(ctx context.Context, documentID, instructions string) (DocumentView, error) {
	if strings.TrimSpace(instructions) == "" {
		return DocumentView{}, validationError("instructions are required")
	}
	doc, err := s.creator.Revise(ctx, documentID, instructions)
	if errors.Is(err, export.ErrGeneration) {
		return DocumentView{}, domainError(http.StatusBadGateway, "GENERATION_FAILED", "Document revision failed", toDocumentView(doc))
	}
	if err != nil {
		return DocumentView{}, err
	}
	return toDocumentView(doc), nil
}

func (s *Service) ExportDocument(ctx context.Context, documentID, format string) (*export.Result, error) {
	if format == "" {
		format = string(export.FormatDOCX)
	}
	return s.creator.Export(ctx, documentID, export.Format(strings.ToLower(format)))
}

// History lists archived save-backs of the document's current key.
func (s *Service) History(ctx context.Context, documentID string, limit int) ([]archive.Commit, error) {
	rec, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items, err := s.archive.History(rec.Key, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []archive.Commit{}
	}
	return items, nil
}

// HistoryVersion returns the document as it was saved at an archived commit.
func (s *Service) HistoryVersion(ctx context.Context, documentID, hash string) (*export.Result, error) {
	rec, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	data, err := s.archive.Version(rec.Key, hash)
	if err != nil {
		return nil, err
	}
	return &export.Result{
		Data:     data,
		Filename: export.SanitizeFilename(rec.Title) + "-" + hash + ".docx",
		MimeType: export.MimeDOCX,
	}, nil
}

type StartSessionInput struct {
	Intent    string `json:"intent"`
	SessionID string `json:"sessionId"`
}

type SessionView struct {
	SessionID    string                  `json:"sessionId"`
	Config       editor.SessionConfig    `json:"config"`
	EditorConfig editor.Payload          `json:"editorConfig"`
	Token        string                  `json:"token"`
	State        string                  `json:"state"`
	Flags        review.ApplicationState `json:"flags"`
}

// StartSession builds the editor config for the caller, registers the session so
// suggestions are applied once the editor reports ready, and signs the config. A
// session asking again for an unchanged config gets its earlier token back.
func (s *Service) StartSession(ctx context.Context, documentID string, user *editor.User, in StartSessionInput) (SessionView, error) {
	rec, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return SessionView{}, err
	}
	if !s.signer.Configured() {
		return SessionView{}, auth.ErrConfiguration
	}

	cfg := editor.BuildConfig(
		editor.Document{ID: rec.ID, Key: rec.Key, Title: rec.Title, URL: rec.URL},
		user,
		editor.ParseIntent(in.Intent),
		editor.Options{CallbackBaseURL: s.cfg.PublicBaseURL, NewID: s.newID},
	)
	payload := cfg.EditorPayload()

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = s.newID()
	}
	sess, err := s.sessions.Register(sessionID, rec.ID, cfg.ReviewerIdentity.Name)
	if errors.Is(err, review.ErrSessionConflict) {
		return SessionView{}, domainError(http.StatusConflict, "SESSION_CONFLICT", "Session belongs to another document", nil)
	}
	if err != nil {
		return SessionView{}, err
	}

	fingerprint := cfg.Fingerprint()
	token, ok := sess.IssuedToken(fingerprint)
	if !ok {
		token, err = s.signer.IssueToken(payload)
		if err != nil {
			return SessionView{}, err
		}
		sess.RecordToken(fingerprint, token)
	}
	s.logger.Info("editing session started",
		zap.String("session_id", sessionID),
		zap.String("document_id", rec.ID),
		zap.String("mode", cfg.Mode),
	)
	return SessionView{
		SessionID:    sessionID,
		Config:       cfg,
		EditorConfig: payload.WithToken(token),
		Token:        token,
		State:        sess.State().String(),
		Flags:        sess.Flags(),
	}, nil
}

type SessionStatus struct {
	SessionID   string                  `json:"sessionId"`
	DocumentID  string                  `json:"documentId"`
	State       string                  `json:"state"`
	Flags       review.ApplicationState `json:"flags"`
	Suggestions int                     `json:"suggestions"`
	Error       string                  `json:"error,omitempty"`
}

func (s *Service) SessionStatus(sessionID string) (SessionStatus, error) {
	sess, ok := s.sessions.Session(sessionID)
	if !ok {
		return SessionStatus{}, notFoundError("Session")
	}
	status := SessionStatus{
		SessionID:   sess.ID,
		DocumentID:  sess.DocumentID,
		State:       sess.State().String(),
		Flags:       sess.Flags(),
		Suggestions: len(sess.Suggestions()),
	}
	if err := sess.Err(); err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

// IssueToken signs an arbitrary config-shaped object for the editor.
func (s *Service) IssueToken(payload map[string]any) (string, error) {
	return s.signer.IssueToken(payload)
}

type CallbackInput struct {
	Status int    `json:"status"`
	URL    string `json:"url"`
	Key    string `json:"key"`
}

// SaveCallback handles the editor's save-back notification. Only a ready-to-save
// status with a download URL has side effects.
func (s *Service) SaveCallback(ctx context.Context, in CallbackInput) error {
	if in.Status != CallbackStatusReadyToSave || strings.TrimSpace(in.URL) == "" {
		s.logger.Debug("callback acknowledged without save", zap.Int("status", in.Status), zap.String("key", in.Key))
		return nil
	}
	if err := archive.CheckKey(in.Key); err != nil {
		return err
	}

	data, err := s.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		return fmt.Errorf("fetch saved document: %w", err)
	}
	commit, err := s.archive.Save(in.Key, data)
	if err != nil {
		return fmt.Errorf("archive saved document: %w", err)
	}
	s.logger.Info("document saved",
		zap.String("key", in.Key),
		zap.String("commit", commit.Hash),
		zap.Int("bytes", len(data)),
	)

	s.publishSaved(ctx, in.Key, data)
	return nil
}

// publishSaved points the document record at the saved bytes so later reviews and
// exports see the editor's changes. The archive already holds the save, so
// failures here are only logged.
func (s *Service) publishSaved(ctx context.Context, key string, data []byte) {
	rec, err := s.store.GetDocumentByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("lookup saved document failed", zap.String("key", key), zap.Error(err))
		return
	}
	name := rec.BlobName
	if name == "" {
		name = export.BlobName(rec.Title, s.now())
	}
	url, err := s.blobs.Put(ctx, name, data, export.MimeDOCX)
	if err != nil {
		s.logger.Warn("publish saved document failed", zap.String("document_id", rec.ID), zap.Error(err))
		return
	}
	if err := s.store.UpdateDocumentURL(ctx, rec.ID, url); err != nil {
		s.logger.Warn("update saved document url failed", zap.String("document_id", rec.ID), zap.Error(err))
	}
}

func (s *Service) ListSuggestions(ctx context.Context, documentID string) ([]review.Suggestion, error) {
	return suggestionStore{store: s.store}.ListSuggestions(ctx, documentID)
}

func (s *Service) ResolveSuggestion(ctx context.Context, documentID, suggestionID string) error {
	return s.store.ResolveSuggestion(ctx, documentID, suggestionID)
}

// ReviewDocument asks the model for suggestions on a stored document.
func (s *Service) ReviewDocument(ctx context.Context, documentID string) ([]review.Suggestion, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.analyzer.Analyze(ctx, documentID)
}

// UserFromToken resolves the caller of a bearer token. An empty token is an
// anonymous guest.
func (s *Service) UserFromToken(token string) (*editor.User, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := auth.ParseUserToken([]byte(s.cfg.UserTokenSecret), token)
	if err != nil {
		return nil, err
	}
	return &editor.User{ID: claims.Sub, Name: claims.Name, Role: claims.Role}, nil
}
