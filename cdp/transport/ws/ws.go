// Package ws provides a WebSocket transport for the DevTools protocol,
// speaking JSON text frames against a browser debugging endpoint.
package ws

import (
	"context"
	"io"
	"sync"

	"github.com/agentuity/go-cdp/cdp/transport"
	"github.com/agentuity/go-cdp/cdp/types"
	"github.com/agentuity/go-cdp/logger"
	"github.com/cockroachdb/errors"
	"golang.org/x/net/websocket"
)

// ErrClosed is returned by Send after the transport closed.
var ErrClosed = errors.New("websocket transport closed")

const defaultOrigin = "http://localhost"

type WebSocketTransport struct {
	conn   *websocket.Conn
	logger logger.Logger

	mu             sync.Mutex
	messageHandler transport.MessageHandler
	closeHandler   transport.CloseHandler

	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Transport = (*WebSocketTransport)(nil)

// Dial connects to a browser debugging endpoint such as
// ws://127.0.0.1:9222/devtools/browser/<id>.
func Dial(wsURL string, log logger.Logger) (*WebSocketTransport, error) {
	config, err := websocket.NewConfig(wsURL, defaultOrigin)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid websocket url %q", wsURL)
	}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %q", wsURL)
	}
	if log == nil {
		log = logger.NewConsoleLogger(logger.LevelNone)
	}
	return &WebSocketTransport{
		conn:   conn,
		logger: log,
		closed: make(chan struct{}),
	}, nil
}

func (t *WebSocketTransport) SetMessageHandler(handler transport.MessageHandler) {
	t.mu.Lock()
	t.messageHandler = handler
	t.mu.Unlock()
}

func (t *WebSocketTransport) SetCloseHandler(handler transport.CloseHandler) {
	t.mu.Lock()
	t.closeHandler = handler
	t.mu.Unlock()
}

// Start launches the read loop. Install the handlers first; messages arriving
// with no message handler are dropped.
func (t *WebSocketTransport) Start(ctx context.Context) error {
	go t.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.closed:
		}
	}()
	return nil
}

func (t *WebSocketTransport) Send(message *types.Message) error {
	select {
	case <-t.closed:
		return errors.Mark(errors.New("send on closed transport"), ErrClosed)
	default:
	}
	if err := websocket.JSON.Send(t.conn, message); err != nil {
		return errors.Wrap(err, "websocket send")
	}
	return nil
}

// Close tears the connection down and fires the close handler once. Safe to
// call from any goroutine, including the read loop.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
		t.mu.Lock()
		handler := t.closeHandler
		t.mu.Unlock()
		if handler != nil {
			handler()
		}
	})
	return err
}

func (t *WebSocketTransport) readLoop() {
	for {
		var msg types.Message
		if err := websocket.JSON.Receive(t.conn, &msg); err != nil {
			select {
			case <-t.closed:
			default:
				if err != io.EOF {
					t.logger.Debug("websocket receive failed: %v", err)
				}
			}
			break
		}
		t.mu.Lock()
		handler := t.messageHandler
		t.mu.Unlock()
		if handler != nil {
			handler(&msg)
		}
	}
	t.Close()
}
