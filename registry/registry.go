// Package registry stores and looks up debugging endpoint addresses.
//
// Whatever launches the debugged process publishes the address it listens on
// under a name; clients resolve the name instead of hard-coding the address.
// Nothing here launches processes or parses their output.
package registry

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("registry: endpoint not found")

// Endpoint is one published debugging endpoint.
type Endpoint struct {
	Addr            string `json:"addr"`                      // ws://host:port/devtools/browser/<id>, tcp://host:port, ...
	Browser         string `json:"browser,omitempty"`         // Product string reported by the peer
	ProtocolVersion string `json:"protocolVersion,omitempty"` // e.g. "1.3"
}

// Resolver looks up endpoints. It is all a client needs.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Endpoint, error)
}

type Registry interface {
	Resolver
	// Publish stores ep under name. ttl > 0 makes the entry expire unless the
	// publisher stays alive; ttl <= 0 keeps it until Withdraw.
	Publish(ctx context.Context, name string, ep Endpoint, ttl int64) error
	Withdraw(ctx context.Context, name string) error
	// Watch emits the endpoint every time it changes. A withdrawn or expired
	// endpoint is emitted as the zero Endpoint. The channel closes with ctx.
	Watch(ctx context.Context, name string) <-chan Endpoint
}
