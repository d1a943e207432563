package types

import (
	"encoding/json"
)

// Message is one DevTools protocol envelope: a command, a command reply, or
// an event notification. A zero ID means the field is absent on the wire.
type Message struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BrowserCloseMessageID is a reserved request id used for the fire-and-forget
// Browser.close acknowledgment. Replies carrying it are discarded on receipt.
const BrowserCloseMessageID = -9999

// Target lifecycle methods handled by the connection layer.
const (
	MethodAttachedToTarget      = "Target.attachedToTarget"
	MethodDetachedFromTarget    = "Target.detachedFromTarget"
	MethodAttachToTarget        = "Target.attachToTarget"
	MethodAttachToBrowserTarget = "Target.attachToBrowserTarget"
	MethodDetachFromTarget      = "Target.detachFromTarget"
)

// TargetInfo describes a peer-addressable automatable unit: a page, a worker,
// or the browser process itself.
type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Attached bool   `json:"attached,omitempty"`
}

// AttachedToTargetParams is the payload of Target.attachedToTarget.
type AttachedToTargetParams struct {
	SessionID          string     `json:"sessionId"`
	TargetInfo         TargetInfo `json:"targetInfo"`
	WaitingForDebugger bool       `json:"waitingForDebugger,omitempty"`
}

// DetachedFromTargetParams is the payload of Target.detachedFromTarget.
type DetachedFromTargetParams struct {
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId,omitempty"`
}

// AttachToTargetResult is the reply payload of Target.attachToTarget and
// Target.attachToBrowserTarget.
type AttachToTargetResult struct {
	SessionID string `json:"sessionId"`
}
