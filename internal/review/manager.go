package review

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"docbridge/internal/connector"
)

// Manager owns the sessions of this process and receives connector lifecycle
// callbacks from the websocket bridge.
type Manager struct {
	ctx    context.Context
	source SuggestionSource
	ledger Ledger
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	conns    map[string]*connector.Conn
}

// NewManager creates a Manager whose sessions live no longer than ctx.
func NewManager(ctx context.Context, source SuggestionSource, ledger Ledger, opts Options) *Manager {
	opts = opts.withDefaults()
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Manager{
		ctx:      ctx,
		source:   source,
		ledger:   ledger,
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
		conns:    make(map[string]*connector.Conn),
	}
}

// Register returns the session for sessionID, creating and mounting it when it
// does not exist yet. An existing session for the same document is returned
// unchanged; one for another document is ErrSessionConflict.
func (m *Manager) Register(sessionID, documentID, reviewer string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerLocked(sessionID, documentID, reviewer, false)
}

// registerLocked mounts new sessions. hasToken marks a session whose editor was
// initialised with a token this process never issued; it does not fetch.
func (m *Manager) registerLocked(sessionID, documentID, reviewer string, hasToken bool) (*Session, error) {
	if s, ok := m.sessions[sessionID]; ok {
		if s.DocumentID != documentID {
			return nil, ErrSessionConflict
		}
		return s, nil
	}
	s := NewSession(sessionID, documentID, reviewer, m.source, m.ledger, m.opts)
	m.sessions[sessionID] = s
	s.Mount(m.ctx, hasToken)
	return s, nil
}

// Session looks up a registered session.
func (m *Manager) Session(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Connected attaches c to its session. A connection for a session this process
// never issued a config for gets a session that does not fetch suggestions.
func (m *Manager) Connected(c *connector.Conn) {
	m.mu.Lock()
	s, err := m.registerLocked(c.SessionID, c.DocumentID, "", true)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("rejecting editor connection", zap.String("session_id", c.SessionID),
			zap.String("document_id", c.DocumentID), zap.Error(err))
		c.Close()
		return
	}
	m.conns[c.SessionID] = c
	m.mu.Unlock()

	m.logger.Info("editor connected", zap.String("session_id", c.SessionID), zap.String("document_id", c.DocumentID))
	s.SetConnector(c)
}

func (m *Manager) Event(c *connector.Conn, name string) {
	s, ok := m.Session(c.SessionID)
	if !ok {
		return
	}
	switch name {
	case connector.EventDocumentReady:
		s.DocumentReady()
	default:
		m.logger.Debug("unhandled editor event", zap.String("event", name), zap.String("session_id", c.SessionID))
	}
}

// Disconnected unmounts the session unless a newer connection already replaced c.
func (m *Manager) Disconnected(c *connector.Conn) {
	m.mu.Lock()
	if m.conns[c.SessionID] != c {
		m.mu.Unlock()
		return
	}
	delete(m.conns, c.SessionID)
	s := m.sessions[c.SessionID]
	delete(m.sessions, c.SessionID)
	m.mu.Unlock()

	if s != nil {
		s.Unmount()
	}
	m.logger.Info("editor disconnected", zap.String("session_id", c.SessionID))
}

// Close unmounts every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.conns = make(map[string]*connector.Conn)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Unmount()
	}
}
