package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentuity/go-cdp/cdp/types"
	"github.com/agentuity/go-cdp/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		for {
			var msg types.Message
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			reply := &types.Message{ID: msg.ID, SessionID: msg.SessionID, Result: json.RawMessage(`{"ok":true}`)}
			if err := websocket.JSON.Send(conn, reply); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr, err := Dial(wsURL(srv), logger.NewTestLogger())
	require.NoError(t, err)
	defer tr.Close()

	got := make(chan *types.Message, 1)
	tr.SetMessageHandler(func(msg *types.Message) { got <- msg })
	require.NoError(t, tr.Start(context.Background()))

	require.NoError(t, tr.Send(&types.Message{ID: 1, Method: "Browser.getVersion"}))

	select {
	case msg := <-got:
		assert.Equal(t, int64(1), msg.ID)
		assert.JSONEq(t, `{"ok":true}`, string(msg.Result))
	case <-time.After(5 * time.Second):
		t.Fatal("no reply from server")
	}
}

func TestWebSocketCloseHandler(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr, err := Dial(wsURL(srv), logger.NewTestLogger())
	require.NoError(t, err)

	closed := make(chan struct{})
	tr.SetCloseHandler(func() { close(closed) })
	require.NoError(t, tr.Start(context.Background()))

	require.NoError(t, tr.Close())
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close handler never fired")
	}

	err = tr.Send(&types.Message{ID: 2, Method: "Browser.getVersion"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosed))

	// Close is idempotent
	assert.NoError(t, tr.Close())
}

func TestWebSocketPeerClose(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		conn.Close()
	}))
	defer srv.Close()

	tr, err := Dial(wsURL(srv), logger.NewTestLogger())
	require.NoError(t, err)

	closed := make(chan struct{})
	tr.SetCloseHandler(func() { close(closed) })
	require.NoError(t, tr.Start(context.Background()))

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("peer-initiated close was not observed")
	}
}

func TestWebSocketContextCancelCloses(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr, err := Dial(wsURL(srv), logger.NewTestLogger())
	require.NoError(t, err)

	closed := make(chan struct{})
	tr.SetCloseHandler(func() { close(closed) })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.Start(ctx))
	cancel()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not close on context cancellation")
	}
}

func TestDialInvalidURL(t *testing.T) {
	_, err := Dial("://not-a-url", logger.NewTestLogger())
	require.Error(t, err)
}
