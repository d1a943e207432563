package cdp

import (
	"encoding/json"
	"sync"
)

// EventHandler receives an event's raw params payload. The payload may be nil
// for events that carry none, such as Disconnected.
type EventHandler func(params json.RawMessage)

// Disconnected is emitted once on a connection and on each of its sessions
// when they close.
const Disconnected = "disconnected"

type queuedEvent struct {
	name   string
	params json.RawMessage
}

type handlerEntry struct {
	id int
	fn EventHandler
}

// emitter is an ordered publish/subscribe registry. Emission is deferred to a
// drain goroutine so subscribers never run inside the dispatch call stack;
// delivery order follows emission order. Handler lists are copy-on-write, so
// an in-flight delivery keeps iterating its snapshot while subscribers are
// added or removed.
type emitter struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string][]*handlerEntry
	queue    []queuedEvent
	draining bool
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[string][]*handlerEntry)}
}

// on registers fn for events named name and returns a func that removes the
// subscription.
func (e *emitter) on(name string, fn EventHandler) func() {
	e.mu.Lock()
	e.nextID++
	entry := &handlerEntry{id: e.nextID, fn: fn}
	e.handlers[name] = append(append([]*handlerEntry{}, e.handlers[name]...), entry)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		list := e.handlers[name]
		next := make([]*handlerEntry, 0, len(list))
		for _, h := range list {
			if h.id != entry.id {
				next = append(next, h)
			}
		}
		e.handlers[name] = next
	}
}

// emit queues one delivery of (name, params) and ensures a drain goroutine is
// running. It never invokes a handler on the caller's stack.
func (e *emitter) emit(name string, params json.RawMessage) {
	e.mu.Lock()
	e.queue = append(e.queue, queuedEvent{name, params})
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	e.mu.Unlock()
	go e.drain()
}

func (e *emitter) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		snapshot := e.handlers[ev.name]
		e.mu.Unlock()
		for _, h := range snapshot {
			h.fn(ev.params)
		}
	}
}
