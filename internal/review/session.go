package review

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"docbridge/internal/connector"
)

const (
	DefaultSpacing    = 500 * time.Millisecond
	DefaultAckTimeout = 5 * time.Second
	guestName         = "Guest"
)

// Options configure a Session.
type Options struct {
	// Spacing is the minimum gap between the starts of two suggestion dispatches.
	Spacing time.Duration
	// AckTimeout bounds the wait for each connector call to answer.
	AckTimeout time.Duration
	Clock      Clock
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Spacing <= 0 {
		o.Spacing = DefaultSpacing
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Session drives one mounted editing session from mount to applied. Events may
// arrive from any goroutine in any order.
type Session struct {
	ID         string
	DocumentID string
	Reviewer   string

	source SuggestionSource
	ledger Ledger
	opts   Options
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	flags       ApplicationState
	suggestions []Suggestion
	conn        connector.Connector
	fetchErr    error
	token       string
	fingerprint string
	ctx         context.Context
	cancel      context.CancelFunc
	unmounted   bool

	doneOnce sync.Once
	done     chan struct{}
}

// NewSession creates an idle session. reviewer is the display name used for
// comments; empty means "Guest".
func NewSession(id, documentID, reviewer string, source SuggestionSource, ledger Ledger, opts Options) *Session {
	opts = opts.withDefaults()
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Session{
		ID:         id,
		DocumentID: documentID,
		Reviewer:   reviewer,
		source:     source,
		ledger:     ledger,
		opts:       opts,
		logger:     opts.Logger.With(zap.String("document_id", documentID), zap.String("session_id", id)),
		done:       make(chan struct{}),
	}
}

// Mount starts loading suggestions. It does nothing unless the session is idle,
// has a document, and hasToken is false.
func (s *Session) Mount(ctx context.Context, hasToken bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle || s.unmounted || s.DocumentID == "" || hasToken {
		return false
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateSuggestionsLoading
	go s.fetch(s.ctx)
	return true
}

func (s *Session) fetch(ctx context.Context) {
	suggestions, err := s.source.ListSuggestions(ctx, s.DocumentID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmounted {
		return
	}
	if err != nil {
		s.fetchErr = err
		s.state = StateIdle
		s.logger.Error("suggestion fetch failed", zap.Error(err))
		s.finish()
		return
	}
	s.suggestions = suggestions
	s.flags.SuggestionsLoaded = true
	s.state = StateAwaitingDocumentReady
	s.logger.Info("suggestions loaded", zap.Int("count", len(suggestions)))
	s.tryApplyLocked()
}

// DocumentReady records the editor's documentReady event.
func (s *Session) DocumentReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.DocumentReady = true
	s.tryApplyLocked()
}

// SetConnector injects the live editor handle; nil clears it. A different handle
// replacing a live one means the editor page reloaded, so readiness must be
// signalled again.
func (s *Session) SetConnector(c connector.Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && c != nil && s.conn != c {
		s.flags.DocumentReady = false
	}
	s.conn = c
	if c != nil {
		s.tryApplyLocked()
	}
}

// Unmount cancels any in-flight or pending dispatch.
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmounted {
		return
	}
	s.unmounted = true
	s.conn = nil
	if s.cancel != nil {
		s.cancel()
	}
	if s.state != StateApplying {
		s.finish()
	}
}

// State returns the current orchestrator state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Flags returns a copy of the application flags.
func (s *Session) Flags() ApplicationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// Suggestions returns the fetched suggestions in fetch order.
func (s *Session) Suggestions() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Suggestion(nil), s.suggestions...)
}

// Err reports a failed suggestion fetch, or ErrConnectorUnavailable while the
// session is ready to apply but has no editor connection.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return s.fetchErr
	}
	if s.conn == nil && s.state == StateAwaitingDocumentReady && s.flags.DocumentReady && len(s.suggestions) > 0 {
		return ErrConnectorUnavailable
	}
	return nil
}

// IssuedToken returns the token recorded for a config fingerprint.
func (s *Session) IssuedToken(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || s.fingerprint != fingerprint {
		return "", false
	}
	return s.token, true
}

// RecordToken remembers the token issued for the config with fingerprint. A
// later config with another fingerprint needs a fresh token.
func (s *Session) RecordToken(fingerprint, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = fingerprint
	s.token = token
}

// Done is closed once the session is applied, failed to load, or unmounted with
// no pass in flight.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// tryApplyLocked starts the apply pass once every precondition holds. Without a
// connector the pass is skipped and the next signal tries again.
func (s *Session) tryApplyLocked() {
	if s.unmounted || s.state != StateAwaitingDocumentReady || s.flags.Applied {
		return
	}
	if !s.flags.SuggestionsLoaded || !s.flags.DocumentReady || len(s.suggestions) == 0 {
		return
	}
	if s.conn == nil {
		s.logger.Warn("skipping apply", zap.Error(ErrConnectorUnavailable))
		return
	}
	s.flags.Applied = true
	s.state = StateApplying
	go s.apply(s.ctx, s.conn, append([]Suggestion(nil), s.suggestions...))
}

func (s *Session) apply(ctx context.Context, conn connector.Connector, suggestions []Suggestion) {
	var lost error
	defer func() {
		s.mu.Lock()
		if lost != nil && ctx.Err() == nil {
			s.rearmLocked(conn, lost)
			s.mu.Unlock()
			return
		}
		if ctx.Err() == nil {
			s.state = StateApplied
		}
		s.mu.Unlock()
		s.finish()
	}()

	pending := make([]Suggestion, 0, len(suggestions))
	for _, sug := range suggestions {
		done, err := s.ledger.Applied(ctx, s.DocumentID, sug.ID)
		if err != nil {
			s.logger.Warn("ledger lookup failed", zap.String("suggestion_id", sug.ID), zap.Error(err))
		}
		if done {
			continue
		}
		pending = append(pending, sug)
	}
	if len(pending) == 0 {
		s.logger.Info("all suggestions already applied")
		return
	}

	if _, err := s.call(ctx, conn, connector.MethodSetTrackChanges, []any{true}); err != nil {
		if undelivered(ctx, err) {
			lost = err
			return
		}
		s.logger.Warn("enable track changes failed", zap.Error(err))
	}

	author := s.Reviewer
	if author == "" {
		author = guestName
	}

	var lastStart time.Time
	for i, sug := range pending {
		if i > 0 {
			if wait := s.opts.Spacing - s.opts.Clock.Now().Sub(lastStart); wait > 0 {
				select {
				case <-s.opts.Clock.After(wait):
				case <-ctx.Done():
					return
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		lastStart = s.opts.Clock.Now()
		dispatched, err := s.applyOne(ctx, conn, sug, author)
		if dispatched {
			if err := s.ledger.MarkApplied(context.WithoutCancel(ctx), s.DocumentID, sug.ID); err != nil {
				s.logger.Warn("ledger write failed", zap.String("suggestion_id", sug.ID), zap.Error(err))
			}
		}
		if err != nil {
			lost = err
			return
		}
	}
	s.logger.Info("suggestions dispatched", zap.Int("count", len(pending)))
}

// rearmLocked returns an interrupted pass to AwaitingDocumentReady so the next
// connector picks up the suggestions that were not delivered.
func (s *Session) rearmLocked(failed connector.Connector, cause error) {
	s.logger.Warn("editor connection lost during apply, waiting for a new one", zap.Error(cause))
	s.state = StateAwaitingDocumentReady
	s.flags.Applied = false
	if s.conn == failed {
		s.conn = nil
		s.flags.DocumentReady = false
	}
	s.tryApplyLocked()
}

// undelivered reports an error after which the editor never saw the call.
func undelivered(ctx context.Context, err error) bool {
	return errors.Is(err, connector.ErrClosed) || ctx.Err() != nil
}

// applyOne replaces the text and, when there is a description, attaches it as a
// comment unless the same author already left the same text. It reports whether
// the replace reached the editor, and returns an error when the connection is gone
// and the pass must stop.
func (s *Session) applyOne(ctx context.Context, conn connector.Connector, sug Suggestion, author string) (bool, error) {
	log := s.logger.With(zap.String("suggestion_id", sug.ID))
	if sug.OriginalText == "" {
		log.Info("suggestion has no anchor text, skipping")
		return false, nil
	}

	result, err := s.call(ctx, conn, connector.MethodSearchAndReplace, []any{connector.SearchAndReplaceArgs{
		SearchString:  sug.OriginalText,
		ReplaceString: sug.SuggestedText,
		MatchCase:     true,
	}})
	if err != nil && undelivered(ctx, err) {
		return false, err
	}
	if err != nil {
		log.Warn("search and replace failed", zap.Error(err))
	} else if isZero(result) {
		log.Info("anchor text not found in document")
	}

	if sug.Description == "" {
		return true, nil
	}

	// the cursor lands on the replaced location through the original text
	if _, err := s.call(ctx, conn, connector.MethodSearchNext, []any{connector.SearchNextArgs{
		SearchString: sug.OriginalText,
		MatchCase:    true,
	}}); err != nil {
		if undelivered(ctx, err) {
			return true, err
		}
		log.Debug("search next failed", zap.Error(err))
	}

	raw, err := s.call(ctx, conn, connector.MethodGetAllComments, nil)
	if err != nil {
		if undelivered(ctx, err) {
			return true, err
		}
		log.Warn("list comments failed, not commenting", zap.Error(err))
		return true, nil
	}
	comments, err := connector.DecodeComments(raw)
	if err != nil {
		log.Warn("unreadable comments, not commenting", zap.Error(err))
		return true, nil
	}
	for _, c := range comments {
		if c.Text == sug.Description && c.UserName == author {
			return true, nil
		}
	}

	if _, err := s.call(ctx, conn, connector.MethodAddComment, []any{connector.Comment{
		Text:     sug.Description,
		UserName: author,
	}}); err != nil {
		if undelivered(ctx, err) {
			return true, err
		}
		log.Warn("add comment failed", zap.Error(err))
	}
	return true, nil
}

// call runs one connector method, giving up after the ack timeout.
func (s *Session) call(ctx context.Context, conn connector.Connector, method string, args any) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.AckTimeout)
	defer cancel()
	raw, err := conn.ExecuteMethod(callCtx, method, args)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		s.logger.Debug("connector call not acknowledged in time", zap.String("method", method))
	}
	return raw, err
}

// isZero reports a JSON numeric zero, the match count of a replace that found
// nothing.
func isZero(raw json.RawMessage) bool {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	return n == 0
}
