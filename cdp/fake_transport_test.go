package cdp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/go-cdp/cdp/transport"
	"github.com/agentuity/go-cdp/cdp/types"
	"github.com/cockroachdb/errors"
)

// fakeTransport is an in-memory transport for driving the connection from
// tests. deliver injects inbound frames; onSend lets a test play the peer.
type fakeTransport struct {
	mu             sync.Mutex
	sent           []*types.Message
	messageHandler transport.MessageHandler
	closeHandler   transport.CloseHandler
	onSend         func(*types.Message)
	closed         bool
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Start(ctx context.Context) error {
	return nil
}

func (t *fakeTransport) Send(msg *types.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	t.sent = append(t.sent, msg)
	onSend := t.onSend
	t.mu.Unlock()
	if onSend != nil {
		onSend(msg)
	}
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

func (t *fakeTransport) SetMessageHandler(handler transport.MessageHandler) {
	t.mu.Lock()
	t.messageHandler = handler
	t.mu.Unlock()
}

func (t *fakeTransport) SetCloseHandler(handler transport.CloseHandler) {
	t.mu.Lock()
	t.closeHandler = handler
	t.mu.Unlock()
}

func (t *fakeTransport) setOnSend(fn func(*types.Message)) {
	t.mu.Lock()
	t.onSend = fn
	t.mu.Unlock()
}

func (t *fakeTransport) deliver(msg *types.Message) {
	t.mu.Lock()
	handler := t.messageHandler
	t.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (t *fakeTransport) sentMessages() []*types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*types.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// attachTarget injects a Target.attachedToTarget notification. rootSessionID
// is the outer envelope's session id ("" for the root).
func attachTarget(t *fakeTransport, sessionID, rootSessionID, targetType string) {
	params, _ := json.Marshal(types.AttachedToTargetParams{
		SessionID:  sessionID,
		TargetInfo: types.TargetInfo{TargetID: "target-" + sessionID, Type: targetType},
	})
	t.deliver(&types.Message{
		Method:    types.MethodAttachedToTarget,
		SessionID: rootSessionID,
		Params:    params,
	})
}

// detachTarget injects a Target.detachedFromTarget notification.
func detachTarget(t *fakeTransport, sessionID, rootSessionID string) {
	params, _ := json.Marshal(types.DetachedFromTargetParams{SessionID: sessionID})
	t.deliver(&types.Message{
		Method:    types.MethodDetachedFromTarget,
		SessionID: rootSessionID,
		Params:    params,
	})
}

// autoReply replies to every outbound command with an empty result.
func autoReply(t *fakeTransport) {
	t.setOnSend(func(msg *types.Message) {
		t.deliver(&types.Message{ID: msg.ID, SessionID: msg.SessionID, Result: json.RawMessage(`{}`)})
	})
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
