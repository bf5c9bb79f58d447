package connector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	connected    chan *Conn
	events       chan string
	disconnected chan *Conn
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		connected:    make(chan *Conn, 4),
		events:       make(chan string, 4),
		disconnected: make(chan *Conn, 4),
	}
}

func (h *recordingHandler) Connected(c *Conn)          { h.connected <- c }
func (h *recordingHandler) Event(_ *Conn, name string) { h.events <- name }
func (h *recordingHandler) Disconnected(c *Conn)       { h.disconnected <- c }

func startBridge(t *testing.T) (*recordingHandler, string) {
	t.Helper()
	handler := newRecordingHandler()
	bridge := NewBridge(handler, nil)
	server := httptest.NewServer(bridge)
	t.Cleanup(server.Close)
	return handler, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialPage(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	page, _, err := websocket.DefaultDialer.Dial(url+"?documentId=doc-1&sessionId=s-1", nil)
	require.NoError(t, err)
	t.Cleanup(func() { page.Close() })
	return page
}

func readExecute(t *testing.T, page *websocket.Conn) message {
	t.Helper()
	require.NoError(t, page.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := page.ReadMessage()
	require.NoError(t, err)
	var msg message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func waitConn(t *testing.T, h *recordingHandler) *Conn {
	t.Helper()
	select {
	case c := <-h.connected:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("connection not registered")
		return nil
	}
}

func TestExecuteMethodRoundTrip(t *testing.T) {
	handler, url := startBridge(t)
	page := dialPage(t, url)
	conn := waitConn(t, handler)

	assert.Equal(t, "doc-1", conn.DocumentID)
	assert.Equal(t, "s-1", conn.SessionID)

	type reply struct {
		raw json.RawMessage
		err error
	}
	done := make(chan reply, 1)
	go func() {
		raw, err := conn.ExecuteMethod(context.Background(), MethodSearchAndReplace, []any{
			SearchAndReplaceArgs{SearchString: "teh", ReplaceString: "the", MatchCase: true},
		})
		done <- reply{raw, err}
	}()

	call := readExecute(t, page)
	assert.Equal(t, typeExecute, call.Type)
	assert.Equal(t, MethodSearchAndReplace, call.Method)
	args, _ := json.Marshal(call.Args)
	assert.JSONEq(t, `[{"searchString":"teh","replaceString":"the","matchCase":true}]`, string(args))

	require.NoError(t, page.WriteJSON(map[string]any{"type": "result", "id": call.ID, "result": 1}))

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.JSONEq(t, "1", string(got.raw))
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteMethod did not return")
	}
}

func TestExecuteMethodRemoteError(t *testing.T) {
	handler, url := startBridge(t)
	page := dialPage(t, url)
	conn := waitConn(t, handler)

	done := make(chan error, 1)
	go func() {
		_, err := conn.ExecuteMethod(context.Background(), MethodAddComment, nil)
		done <- err
	}()
	call := readExecute(t, page)
	require.NoError(t, page.WriteJSON(map[string]any{"type": "result", "id": call.ID, "error": "no selection"}))

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrRemote), "error = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteMethod did not return")
	}
}

func TestEventsAreForwarded(t *testing.T) {
	handler, url := startBridge(t)
	page := dialPage(t, url)
	waitConn(t, handler)

	require.NoError(t, page.WriteJSON(map[string]any{"type": "event", "event": EventDocumentReady}))
	select {
	case name := <-handler.events:
		assert.Equal(t, EventDocumentReady, name)
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestPendingCallsFailWhenPageDisconnects(t *testing.T) {
	handler, url := startBridge(t)
	page := dialPage(t, url)
	conn := waitConn(t, handler)

	done := make(chan error, 1)
	go func() {
		_, err := conn.ExecuteMethod(context.Background(), MethodGetAllComments, nil)
		done <- err
	}()
	readExecute(t, page)
	require.NoError(t, page.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed")
	}
	select {
	case <-handler.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}

	_, err := conn.ExecuteMethod(context.Background(), MethodGetAllComments, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestExecuteMethodHonoursContext(t *testing.T) {
	handler, url := startBridge(t)
	dialPage(t, url)
	conn := waitConn(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := conn.ExecuteMethod(ctx, MethodSearchNext, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServeHTTPRequiresSession(t *testing.T) {
	bridge := NewBridge(nil, nil)
	rec := httptest.NewRecorder()
	bridge.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/connector?documentId=doc-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeComments(t *testing.T) {
	comments, err := DecodeComments(json.RawMessage(`[{"Text":"a","UserName":"Ada"},{"Id":"2","Data":{"Text":"b","UserName":"Bo"}}]`))
	require.NoError(t, err)
	assert.Equal(t, []Comment{{Text: "a", UserName: "Ada"}, {Text: "b", UserName: "Bo"}}, comments)

	comments, err = DecodeComments(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Empty(t, comments)

	_, err = DecodeComments(json.RawMessage(`{"not":"a list"}`))
	assert.Error(t, err)
}
