package cdp

import (
	"fmt"

	"github.com/agentuity/go-cdp/cdp/types"
	"github.com/cockroachdb/errors"
)

// Sentinel error kinds, usable with errors.Is.
var (
	// ErrSessionClosed is returned by Send on a session that is already dead.
	ErrSessionClosed = errors.New("session closed")
	// ErrAlreadyDetached is returned by Detach when the session or its root
	// session is already gone.
	ErrAlreadyDetached = errors.New("session already detached")
	// ErrTargetCrashed is returned by Send after MarkAsCrashed.
	ErrTargetCrashed = errors.New("target crashed")
	// ErrTargetClosed rejects pending calls when their session closes.
	ErrTargetClosed = errors.New("target closed")
	// ErrProtocol marks errors returned by the peer for a command.
	ErrProtocol = errors.New("protocol error")
)

// rewriteErrorMessage returns an error whose message is msg but which still
// carries the call-site stack captured in site, so asynchronous rejections
// point at the code that issued the command.
func rewriteErrorMessage(site error, format string, args ...interface{}) error {
	return errors.WithSecondaryError(errors.NewWithDepthf(1, format, args...), site)
}

// protocolError formats a peer-reported command failure. The message combines
// the method name, the peer's message and any attached data.
func protocolError(call *pendingCall, werr *types.Error) error {
	msg := fmt.Sprintf("Protocol error (%s): %s", call.method, werr.Message)
	if len(werr.Data) > 0 {
		msg = msg + " " + string(werr.Data)
	}
	return errors.Mark(rewriteErrorMessage(call.site, "%s", msg), ErrProtocol)
}
