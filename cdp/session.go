package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentuity/go-cdp/cdp/types"
	"github.com/agentuity/go-cdp/logger"
	"github.com/cockroachdb/errors"
)

type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall is one outstanding command: the method name, the settlement
// channel, and an error capturing the Send call-site stack for diagnostics.
type pendingCall struct {
	method string
	site   error
	done   chan callResult
}

// settle delivers the result at most once and never blocks dispatch. The
// second settlement of an abandoned call (reply raced with close) is dropped.
func (p *pendingCall) settle(r callResult) {
	select {
	case p.done <- r:
	default:
	}
}

// Session is the client-side logical channel for one attached target. All of
// a session's traffic is multiplexed over its connection's transport, tagged
// with the session id. A session becomes dead when its target detaches or the
// connection closes; a dead session fails every Send immediately.
type Session struct {
	sessionID     string
	rootSessionID string
	targetType    string
	logger        logger.Logger

	mu      sync.Mutex
	conn    *Connection // nil once the session is dead
	crashed bool
	pending map[int64]*pendingCall

	events *emitter
}

func newSession(conn *Connection, targetType, sessionID, rootSessionID string) *Session {
	return &Session{
		sessionID:     sessionID,
		rootSessionID: rootSessionID,
		targetType:    targetType,
		logger:        conn.logger,
		conn:          conn,
		pending:       make(map[int64]*pendingCall),
		events:        newEmitter(),
	}
}

// ID returns the session id assigned by the peer ("" for the root session).
func (s *Session) ID() string {
	return s.sessionID
}

// TargetType returns the attached target's type label. It is diagnostic only.
func (s *Session) TargetType() string {
	return s.targetType
}

// On subscribes fn to protocol events named event on this session and returns
// a func that removes the subscription. Handlers run outside the dispatch
// call stack, in event arrival order.
func (s *Session) On(event string, fn EventHandler) func() {
	return s.events.on(event, fn)
}

// OnDisconnect subscribes fn to this session's terminal close.
func (s *Session) OnDisconnect(fn func()) func() {
	return s.events.on(Disconnected, func(json.RawMessage) { fn() })
}

// Send issues a command on this session and blocks until the peer replies,
// the session closes, or ctx is done. Timeout policy belongs to the caller's
// ctx; the session imposes none. Params may be nil or any JSON-marshalable
// value.
func (s *Session) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal params for %s", method)
		}
		raw = buf
	}

	s.mu.Lock()
	if s.crashed {
		s.mu.Unlock()
		return nil, errors.Mark(errors.Newf("Protocol error (%s): target crashed", method), ErrTargetCrashed)
	}
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil, errors.Mark(errors.Newf("Protocol error (%s): the %s has been closed", method, s.targetType), ErrSessionClosed)
	}
	id := conn.nextID()
	call := &pendingCall{
		method: method,
		site:   errors.NewWithDepthf(1, "%s", method),
		done:   make(chan callResult, 1),
	}
	s.pending[id] = call
	s.mu.Unlock()

	if err := conn.rawSend(id, s.sessionID, method, raw); err != nil {
		s.forget(id)
		return nil, err
	}

	select {
	case r := <-call.done:
		return r.result, r.err
	case <-ctx.Done():
		// The entry stays registered: the peer may still reply with this id,
		// and an unmatched reply is treated as a correlation bug. The late
		// settlement lands in the buffered channel and is dropped.
		return nil, ctx.Err()
	}
}

// SendMayFail issues a command like Send but converts any failure into a
// logged side effect, returning nil instead. It is intended for best-effort
// cleanup calls where the target may already be gone.
func (s *Session) SendMayFail(ctx context.Context, method string, params interface{}) json.RawMessage {
	result, err := s.Send(ctx, method, params)
	if err != nil {
		s.logger.Warn("command %s failed: %v", method, err)
		return nil
	}
	return result
}

// MarkAsCrashed flags the target as crashed. Subsequent Sends fail fast;
// calls already in flight settle normally or are swept on close. The flag is
// one-way.
func (s *Session) MarkAsCrashed() {
	s.mu.Lock()
	s.crashed = true
	s.mu.Unlock()
}

// Detach requests detachment from the target by issuing Target.detachFromTarget
// on the root session. The session is removed from the registry later, when
// the connection dispatches the resulting detach notification; this call only
// requests it.
func (s *Session) Detach(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.Mark(errors.Newf("session %q already detached", s.sessionID), ErrAlreadyDetached)
	}
	root := conn.Session(s.rootSessionID)
	if root == nil {
		return errors.Mark(errors.Newf("root session %q for session %q is gone", s.rootSessionID, s.sessionID), ErrAlreadyDetached)
	}
	_, err := root.Send(ctx, types.MethodDetachFromTarget, map[string]interface{}{"sessionId": s.sessionID})
	return err
}

func (s *Session) forget(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// onMessage handles one inbound envelope addressed to this session: a reply
// settles its pending call, an event (no id) is emitted to subscribers.
func (s *Session) onMessage(msg *types.Message) {
	if msg.ID != 0 {
		s.mu.Lock()
		call, ok := s.pending[msg.ID]
		delete(s.pending, msg.ID)
		s.mu.Unlock()
		if !ok {
			// A reply nobody is waiting for signals a correlation bug, not a
			// recoverable condition.
			panic(fmt.Sprintf("cdp: reply for unknown request id %d on session %q", msg.ID, s.sessionID))
		}
		if msg.Error != nil {
			call.settle(callResult{err: protocolError(call, msg.Error)})
		} else {
			call.settle(callResult{result: msg.Result})
		}
		return
	}
	s.events.emit(msg.Method, msg.Params)
}

// onClosed is the terminal transition: every pending call is rejected with a
// closed-target error preserving its call-site stack, the table is cleared,
// and the connection reference dropped so later Sends fail fast. Disconnected
// is emitted outside the dispatch stack.
func (s *Session) onClosed() {
	s.mu.Lock()
	calls := s.pending
	s.pending = make(map[int64]*pendingCall)
	s.conn = nil
	s.mu.Unlock()
	for _, call := range calls {
		err := rewriteErrorMessage(call.site, "Protocol error (%s): Target closed", call.method)
		call.settle(callResult{err: errors.Mark(err, ErrTargetClosed)})
	}
	s.events.emit(Disconnected, nil)
}
