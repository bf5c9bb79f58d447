package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Handler receives connection lifecycle events from the Bridge. Connected runs
// before any message is read and must not wait on method results.
type Handler interface {
	Connected(c *Conn)
	Event(c *Conn, name string)
	Disconnected(c *Conn)
}

// Bridge upgrades editor-page connections and tracks one Conn per session.
type Bridge struct {
	upgrader websocket.Upgrader
	handler  Handler
	logger   *zap.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewBridge(handler Handler, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the editor page is served from the editor's origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		handler: handler,
		logger:  logger,
		conns:   make(map[string]*Conn),
	}
}

// ServeHTTP expects ?documentId=...&sessionId=... and upgrades the request.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("documentId")
	sessionID := r.URL.Query().Get("sessionId")
	if documentID == "" || sessionID == "" {
		http.Error(w, "documentId and sessionId are required", http.StatusBadRequest)
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("connector upgrade failed", zap.Error(err))
		return
	}

	c := &Conn{
		DocumentID: documentID,
		SessionID:  sessionID,
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		pending:    make(map[int64]chan callResult),
		closed:     make(chan struct{}),
		logger:     b.logger.With(zap.String("document_id", documentID), zap.String("session_id", sessionID)),
	}

	b.mu.Lock()
	previous := b.conns[sessionID]
	b.conns[sessionID] = c
	b.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	go c.writePump()
	if b.handler != nil {
		b.handler.Connected(c)
	}
	go b.readPump(c)
}

func (b *Bridge) readPump(c *Conn) {
	defer func() {
		c.Close()
		b.mu.Lock()
		if b.conns[c.SessionID] == c {
			delete(b.conns, c.SessionID)
		}
		b.mu.Unlock()
		if b.handler != nil {
			b.handler.Disconnected(c)
		}
	}()

	c.ws.SetReadLimit(1 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("connector read failed", zap.Error(err))
			}
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("malformed connector message", zap.Error(err))
			continue
		}
		switch msg.Type {
		case typeResult:
			c.resolve(msg)
		case typeEvent:
			if b.handler != nil {
				b.handler.Event(c, msg.Event)
			}
		default:
			c.logger.Debug("ignoring connector message", zap.String("type", msg.Type))
		}
	}
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Conn is one editor page connection. It implements Connector.
type Conn struct {
	DocumentID string
	SessionID  string

	ws     *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan callResult

	closeOnce sync.Once
	closed    chan struct{}
}

// ExecuteMethod sends a call to the editor page and waits for its result.
func (c *Conn) ExecuteMethod(ctx context.Context, name string, args any) (json.RawMessage, error) {
	ch := make(chan callResult, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	payload, err := json.Marshal(message{Type: typeExecute, ID: id, Method: name, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s call: %w", name, err)
	}

	select {
	case c.send <- payload:
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the connection and fails pending calls.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

func (c *Conn) resolve(msg message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("result for unknown call", zap.Int64("id", msg.ID))
		return
	}
	res := callResult{result: msg.Result}
	if msg.Error != "" {
		res.err = fmt.Errorf("%w: %s", ErrRemote, msg.Error)
	}
	ch <- res
}

func (c *Conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
