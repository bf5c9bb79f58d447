package review

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbridge/internal/connector"
)

type pageMessage struct {
	Type   string          `json:"type"`
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Event  string          `json:"event,omitempty"`
}

// editorPage answers every execute message and reports the methods it saw.
func editorPage(t *testing.T, ws *websocket.Conn, methods chan<- string) {
	t.Helper()
	go func() {
		for {
			var msg pageMessage
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "execute" {
				continue
			}
			methods <- msg.Method
			result := json.RawMessage("1")
			if msg.Method == connector.MethodGetAllComments {
				result = json.RawMessage("[]")
			}
			if err := ws.WriteJSON(pageMessage{Type: "result", ID: msg.ID, Result: result}); err != nil {
				return
			}
		}
	}()
}

func collect(t *testing.T, methods <-chan string, n int) []string {
	t.Helper()
	var got []string
	for len(got) < n {
		select {
		case m := <-methods:
			got = append(got, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %v, want %d methods", got, n)
		}
	}
	return got
}

func TestManagerDrivesSessionOverBridge(t *testing.T) {
	src := &fakeSource{suggestions: []Suggestion{sug("a", "teh", "the", "Typo")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager := NewManager(ctx, src, NewMemoryLedger(), fastOptions())

	registered, err := manager.Register("s-1", "doc-1", "Ana")
	require.NoError(t, err)
	again, err := manager.Register("s-1", "doc-1", "Someone else")
	require.NoError(t, err)
	assert.Same(t, registered, again)

	server := httptest.NewServer(connector.NewBridge(manager, nil))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?documentId=doc-1&sessionId=s-1"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	methods := make(chan string, 16)
	editorPage(t, ws, methods)
	require.NoError(t, ws.WriteJSON(pageMessage{Type: "event", Event: connector.EventDocumentReady}))

	got := collect(t, methods, 5)
	assert.Equal(t, []string{
		connector.MethodSetTrackChanges,
		connector.MethodSearchAndReplace,
		connector.MethodSearchNext,
		connector.MethodGetAllComments,
		connector.MethodAddComment,
	}, got)
	waitDone(t, registered)
	assert.Equal(t, StateApplied, registered.State())

	ws.Close()
	require.Eventually(t, func() bool { return manager.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestManagerCreatesSessionOnConnect(t *testing.T) {
	src := &fakeSource{suggestions: []Suggestion{sug("a", "x", "y", "")}}
	manager := NewManager(context.Background(), src, nil, fastOptions())
	defer manager.Close()

	server := httptest.NewServer(connector.NewBridge(manager, nil))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?documentId=doc-9&sessionId=s-9"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool {
		_, ok := manager.Session("s-9")
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	s, _ := manager.Session("s-9")
	assert.Equal(t, "doc-9", s.DocumentID)
	assert.Equal(t, "", s.Reviewer)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, s.State(), "a connection without an issued config must not fetch")
}

func TestManagerRejectsSessionForAnotherDocument(t *testing.T) {
	manager := NewManager(context.Background(), &fakeSource{}, nil, fastOptions())
	defer manager.Close()

	first, err := manager.Register("s-1", "doc-1", "Ana")
	require.NoError(t, err)

	_, err = manager.Register("s-1", "doc-2", "Ana")
	assert.ErrorIs(t, err, ErrSessionConflict)

	s, ok := manager.Session("s-1")
	require.True(t, ok)
	assert.Same(t, first, s)
	assert.Equal(t, "doc-1", s.DocumentID)
}

func TestManagerClosesConnectionForAnotherDocument(t *testing.T) {
	manager := NewManager(context.Background(), &fakeSource{}, nil, fastOptions())
	defer manager.Close()
	_, err := manager.Register("s-1", "doc-1", "")
	require.NoError(t, err)

	server := httptest.NewServer(connector.NewBridge(manager, nil))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?documentId=doc-2&sessionId=s-1"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.Error(t, err, "connection should be closed by the server")

	s, _ := manager.Session("s-1")
	assert.Equal(t, "doc-1", s.DocumentID)
}

func TestManagerCloseUnmountsSessions(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{gate: gate}
	manager := NewManager(context.Background(), src, nil, fastOptions())

	s, err := manager.Register("s-1", "doc-1", "")
	require.NoError(t, err)
	manager.Close()
	waitDone(t, s)
	assert.Equal(t, 0, manager.Len())
	close(gate)
}
