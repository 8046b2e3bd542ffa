// Package transport carries whole debugging messages over a duplex byte channel.
//
// A Transport hands inbound data to its single reader in chunks. A chunk never
// spans two messages, and the chunk that ends a message is marked final, the same
// contract a WebSocket frame reader gives. The Reassembler turns chunks back into
// messages:
//
//	peer ──frame──frame──frame(FIN)──→ Transport.Receive ─chunks─→ Reassembler ─message─→ router
//
// Writes are whole messages. Send is atomic per call from the peer's point of view
// but transports are not safe for concurrent Send; the owning connection serializes
// writers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Transport is one open duplex channel to the peer.
type Transport interface {
	// Send writes one complete message.
	Send(ctx context.Context, msg []byte) error
	// Receive reads the next chunk of the current inbound message into buf.
	// final is true when the chunk ends the message. Cancelling ctx unblocks a
	// pending read; the transport is unusable for reading afterwards.
	Receive(ctx context.Context, buf []byte) (n int, final bool, err error)
	// Close shuts the channel down gracefully.
	Close() error
	// Abort drops the channel immediately, failing any blocked Send/Receive.
	Abort() error
}

// Pinger is implemented by transports that support a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dialer opens a Transport to an address.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Transport, error) {
	return f(ctx, addr)
}

// ErrUnsupportedScheme is returned by DialerFor for addresses it cannot serve.
var ErrUnsupportedScheme = errors.New("transport: unsupported address scheme")

// DialerFor picks a dialer by address scheme:
//   - ws://, wss://  → WebSocket (the browser's debugging endpoint)
//   - tcp://, unix:// → framed stream (see package protocol)
func DialerFor(addr string, opts Options) (Dialer, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid address %q: %w", addr, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return NewWebSocketDialer(opts), nil
	case "tcp", "unix":
		return NewStreamDialer(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Options tune the built-in transports.
type Options struct {
	HandshakeTimeout time.Duration // Upper bound for dialing + handshake
	WriteTimeout     time.Duration // Per-message write deadline when ctx has none
	ReadBufferSize   int           // Socket-level read buffer hint
	WriteBufferSize  int           // Socket-level write buffer; for WebSocket also the outbound frame size
	FrameSize        int           // Stream transports: max body bytes per outbound frame, 0 = unlimited
}

// aLongTimeAgo is a non-zero time far in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// interruptOnCancel arranges for setDeadline to fire when ctx is cancelled, which
// makes a blocked read return. The returned stop func must be called when the
// read completes.
func interruptOnCancel(ctx context.Context, setDeadline func(time.Time) error) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = setDeadline(aLongTimeAgo)
	})
}

// writeDeadline derives the deadline for one Send.
func writeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	if timeout > 0 {
		return time.Now().Add(timeout)
	}
	return time.Time{}
}

// readErr prefers the context error over the I/O error it provoked.
func readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
