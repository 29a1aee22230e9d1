// Package transport delivers framed requests from the mixnet and sends
// replies back. A sender handle is a transport-assigned opaque identifier,
// stable while the peer's reply block lasts, and is never trusted as an
// identity.
package transport

import (
	"context"
	"time"
)

// Inbound is one received packet: the opaque sender handle and the raw
// request bytes.
type Inbound struct {
	SenderHandle string
	Payload      []byte
	ReceivedAt   time.Time
}

// Transport is a bidirectional opaque packet channel keyed by sender handle.
type Transport interface {
	// Receive returns the inbound packet channel. It is closed when the
	// transport shuts down.
	Receive() <-chan Inbound

	// Send delivers payload to the peer behind senderHandle. Best effort:
	// callers log failures and move on, there are no retries.
	Send(ctx context.Context, senderHandle string, payload []byte) error

	// Close tears the channel down.
	Close() error
}
