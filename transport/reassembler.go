package transport

import (
	"context"
)

// DefaultBufferSize is the size of the fixed receive buffer, and the free space
// the accumulation buffer must keep before each read.
const DefaultBufferSize = 4096

// Reassembler reads chunks from a Transport and returns whole messages.
//
// A message that arrives as a single final chunk is returned straight out of the
// fixed receive buffer. Anything longer is accumulated in a buffer rented from the
// pool; whenever less than bufferSize bytes of space are left the buffer is
// doubled (rent bigger, copy, return old). There is no maximum message size.
//
// Not safe for concurrent use: it belongs to the connection's receive loop.
type Reassembler struct {
	t       Transport
	pool    *BufferPool
	readBuf []byte // Fixed receive buffer, also the single-chunk fast path
	acc     []byte // Rented accumulation buffer of the last message, nil if none
}

// NewReassembler creates a reassembler. bufferSize <= 0 uses DefaultBufferSize,
// a nil pool uses DefaultPool.
func NewReassembler(t Transport, pool *BufferPool, bufferSize int) *Reassembler {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if pool == nil {
		pool = DefaultPool
	}
	return &Reassembler{
		t:       t,
		pool:    pool,
		readBuf: make([]byte, bufferSize),
	}
}

// Next blocks until one complete message has been received. The returned slice
// is only valid until the next call to Next or Release.
func (r *Reassembler) Next(ctx context.Context) ([]byte, error) {
	r.Release()

	n, final, err := r.t.Receive(ctx, r.readBuf)
	if err != nil {
		return nil, err
	}
	if final {
		return r.readBuf[:n], nil
	}

	acc := r.pool.Rent(2 * len(r.readBuf))
	used := copy(acc, r.readBuf[:n])

	for {
		if len(acc)-used < len(r.readBuf) {
			acc = r.grow(acc, used, 2*len(acc))
		}

		n, final, err = r.t.Receive(ctx, acc[used:])
		if err != nil {
			r.pool.Return(acc)
			return nil, err
		}
		used += n

		if final {
			break
		}
	}

	r.acc = acc
	return acc[:used], nil
}

// Release returns the accumulation buffer of the last message to the pool.
// Next calls it implicitly.
func (r *Reassembler) Release() {
	if r.acc != nil {
		r.pool.Return(r.acc)
		r.acc = nil
	}
}

// grow never resizes in place: it rents a larger buffer, copies the live bytes
// and returns the old one.
func (r *Reassembler) grow(buf []byte, used int, size int) []byte {
	bigger := r.pool.Rent(size)
	copy(bigger, buf[:used])
	r.pool.Return(buf)
	return bigger
}
