package client

import "sync/atomic"

// idGenerator issues request ids: 1, 2, 3, ... never repeating for the life
// of the connection.
type idGenerator struct {
	last atomic.Int64
}

func (g *idGenerator) Next() int64 {
	return g.last.Add(1)
}
