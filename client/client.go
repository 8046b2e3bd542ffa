// Package client is the protocol engine: one Conn per debugging endpoint,
// shared by any number of goroutines.
//
//	caller ──SendRequest──→ middleware ─→ ids.Next ─→ pending.Register ─→ transport.Send
//	                                                         ↑
//	transport.Receive ─→ Reassembler ─→ route ─┬─ response ──┘ (Resolve, at most once)
//	                                            ├─ event ─────→ eventRegistry.dispatch
//	                                            └─ other ─────→ unknown-message handler
//
// The receive loop is the only reader of the transport and runs for the whole
// life of the connection. When it dies it records the fault and fails every
// pending request with it.
package client

import (
	"context"
	"fmt"

	"devtools-rpc/registry"
)

// Dial creates a Conn for addr and connects it.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	c := New(addr, opts...)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// DialNamed resolves name through r and dials the published address.
func DialNamed(ctx context.Context, r registry.Resolver, name string, opts ...Option) (*Conn, error) {
	ep, err := r.Resolve(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("client: resolve %s: %w", name, err)
	}
	return Dial(ctx, ep.Addr, opts...)
}
