package transport

import (
	"context"

	"github.com/agentuity/go-cdp/cdp/types"
)

// Transport carries already-deserialized protocol envelopes between the client
// and the browser endpoint. Implementations own the wire framing; the client
// core never sees raw bytes.
type Transport interface {
	// Start begins delivering inbound messages. Call it after the handlers
	// are installed; closing ctx closes the transport.
	Start(ctx context.Context) error

	// Send writes one envelope to the peer. It must not block waiting for a
	// reply.
	Send(message *types.Message) error

	// Close tears down the transport. It is idempotent. The close handler
	// fires once the transport is no longer delivering messages.
	Close() error

	SetMessageHandler(handler MessageHandler)

	SetCloseHandler(handler CloseHandler)
}

// MessageHandler receives inbound envelopes in wire arrival order.
type MessageHandler func(message *types.Message)

// CloseHandler is invoked exactly once when the transport stops delivering
// messages, whether closed locally or by the peer.
type CloseHandler func()
