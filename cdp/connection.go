// Package cdp implements the session-multiplexing core of a DevTools-protocol
// client: one transport carries command, reply and event traffic for many
// logical sessions, each bound to one attached target. The package routes
// inbound envelopes to the owning session, correlates commands with replies
// through a shared id counter, tracks target attach/detach lifecycle, and
// cascades connection closure to every open session so no pending call is
// left unsettled.
package cdp

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/agentuity/go-cdp/cdp/transport"
	"github.com/agentuity/go-cdp/cdp/types"
	"github.com/agentuity/go-cdp/logger"
	"github.com/cockroachdb/errors"
)

// Connection owns one transport and the registry of sessions multiplexed over
// it. The root session (id "") represents the connection itself and exists
// for its whole open lifetime.
type Connection struct {
	transport transport.Transport
	logger    logger.Logger

	// lastID is shared by every session on this connection. Per-session
	// counters would collide across sessions and corrupt reply correlation.
	lastID atomic.Int64

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	root   *Session
	events *emitter
}

// NewConnection binds a connection to t and installs its message and close
// hooks. The caller remains responsible for starting the transport.
func NewConnection(t transport.Transport, log logger.Logger) *Connection {
	if log == nil {
		log = logger.NewConsoleLogger(logger.LevelNone)
	}
	c := &Connection{
		transport: t,
		logger:    log,
		sessions:  make(map[string]*Session),
		events:    newEmitter(),
	}
	c.root = newSession(c, "browser", "", "")
	c.sessions[""] = c.root
	t.SetMessageHandler(c.onMessage)
	t.SetCloseHandler(c.onClose)
	return c
}

// RootSession returns the session representing the connection itself.
func (c *Connection) RootSession() *Session {
	return c.root
}

// Session returns the live session registered under sessionID, or nil.
func (c *Connection) Session(sessionID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[sessionID]
}

// IsClosed reports whether the connection has closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// OnDisconnect subscribes fn to connection closure and returns a func that
// removes the subscription.
func (c *Connection) OnDisconnect(fn func()) func() {
	return c.events.on(Disconnected, func(json.RawMessage) { fn() })
}

func (c *Connection) nextID() int64 {
	return c.lastID.Add(1)
}

// rawSend frames and writes one command. It never waits for the reply. The
// sessionId field is omitted on the wire for the root session.
func (c *Connection) rawSend(id int64, sessionID string, method string, params json.RawMessage) error {
	msg := &types.Message{ID: id, SessionID: sessionID, Method: method, Params: params}
	if c.logger.IsTraceEnabled() {
		buf, _ := json.Marshal(msg)
		c.logger.Trace("SEND ► %s", string(buf))
	}
	return c.transport.Send(msg)
}

// onMessage dispatches one inbound envelope, in transport arrival order.
//
// A detach notification has a dual effect: it tears down the named session
// and is also forwarded as an ordinary event to the session owning the outer
// envelope, so a parent session observes the detachment of its children.
func (c *Connection) onMessage(msg *types.Message) {
	if c.logger.IsTraceEnabled() {
		buf, _ := json.Marshal(msg)
		c.logger.Trace("◀ RECV %s", string(buf))
	}
	if msg.ID == types.BrowserCloseMessageID {
		return
	}
	if msg.Method == types.MethodAttachedToTarget {
		var params types.AttachedToTargetParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.logger.Error("malformed %s payload: %v", msg.Method, err)
			return
		}
		session := newSession(c, params.TargetInfo.Type, params.SessionID, msg.SessionID)
		c.mu.Lock()
		c.sessions[params.SessionID] = session
		c.mu.Unlock()
	}
	if msg.Method == types.MethodDetachedFromTarget {
		var params types.DetachedFromTargetParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.logger.Error("malformed %s payload: %v", msg.Method, err)
			return
		}
		c.mu.Lock()
		session := c.sessions[params.SessionID]
		delete(c.sessions, params.SessionID)
		c.mu.Unlock()
		if session != nil {
			session.onClosed()
		}
	}
	c.mu.Lock()
	session := c.sessions[msg.SessionID]
	c.mu.Unlock()
	if session != nil {
		session.onMessage(msg)
	}
}

// Close requests transport closure. It is idempotent; the cascade to sessions
// runs from the transport's close hook.
func (c *Connection) Close() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("transport close failed: %v", err)
	}
}

// onClose is the transport close hook: mark closed, detach the transport
// hooks, close every session (sweeping its pending calls), clear the
// registry, then emit Disconnected outside the dispatch stack.
func (c *Connection) onClose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()

	c.transport.SetMessageHandler(nil)
	c.transport.SetCloseHandler(nil)

	for _, session := range sessions {
		session.onClosed()
	}
	c.events.emit(Disconnected, nil)
}

// CreateSession attaches to the target described by info (with session
// flattening) and returns the session registered for it.
//
// This relies on the peer surfacing the attach notification no later than the
// attach command's own reply, which the DevTools protocol guarantees for
// flattened sessions.
func (c *Connection) CreateSession(ctx context.Context, info types.TargetInfo) (*Session, error) {
	result, err := c.root.Send(ctx, types.MethodAttachToTarget, map[string]interface{}{
		"targetId": info.TargetID,
		"flatten":  true,
	})
	if err != nil {
		return nil, err
	}
	return c.sessionFromAttachResult(result)
}

// CreateBrowserSession attaches to the browser target itself.
func (c *Connection) CreateBrowserSession(ctx context.Context) (*Session, error) {
	result, err := c.root.Send(ctx, types.MethodAttachToBrowserTarget, nil)
	if err != nil {
		return nil, err
	}
	return c.sessionFromAttachResult(result)
}

func (c *Connection) sessionFromAttachResult(result json.RawMessage) (*Session, error) {
	var attach types.AttachToTargetResult
	if err := json.Unmarshal(result, &attach); err != nil {
		return nil, errors.Wrap(err, "malformed attach reply")
	}
	session := c.Session(attach.SessionID)
	if session == nil {
		return nil, errors.Newf("no session registered for %q: peer replied before its attach notification", attach.SessionID)
	}
	return session, nil
}
