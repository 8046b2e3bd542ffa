package transport

import (
	"math/bits"
)

// Size classes are powers of two from 512 B to 16 MiB. Larger buffers are
// allocated directly and left to the GC on Return.
const (
	minClassShift = 9
	maxClassShift = 24
	numClasses    = maxClassShift - minClassShift + 1
)

// BufferPool rents reusable byte buffers in power-of-two size classes.
//
// Each class is a buffered channel used as a free list: channels are
// goroutine-safe, bounded, and a non-blocking select turns "pool empty" into an
// allocation and "pool full" into a drop.
type BufferPool struct {
	classes [numClasses]chan []byte
}

// DefaultPool is shared by connections that are not given their own pool.
var DefaultPool = NewBufferPool(8)

// NewBufferPool creates a pool that keeps up to perClass idle buffers per class.
func NewBufferPool(perClass int) *BufferPool {
	if perClass < 1 {
		perClass = 1
	}
	p := &BufferPool{}
	for i := range p.classes {
		p.classes[i] = make(chan []byte, perClass)
	}
	return p
}

// Rent returns a buffer with len >= minSize. Its contents are not zeroed;
// callers track their own used length.
func (p *BufferPool) Rent(minSize int) []byte {
	cls, size := classFor(minSize)
	if cls < 0 {
		return make([]byte, minSize)
	}

	select {
	case buf := <-p.classes[cls]:
		return buf[:size]
	default:
		return make([]byte, size)
	}
}

// Return hands a rented buffer back. Buffers that do not belong to a size class
// are dropped. The caller must not touch buf afterwards.
func (p *BufferPool) Return(buf []byte) {
	c := cap(buf)
	if c < 1<<minClassShift || c&(c-1) != 0 {
		return
	}
	shift := bits.TrailingZeros(uint(c))
	if shift > maxClassShift {
		return
	}

	select {
	case p.classes[shift-minClassShift] <- buf[:c]:
	default:
		// Free list full
	}
}

// Idle reports how many free buffers the class serving size holds.
func (p *BufferPool) Idle(size int) int {
	cls, _ := classFor(size)
	if cls < 0 {
		return 0
	}
	return len(p.classes[cls])
}

// classFor maps a requested size to its class index and class size.
// It returns -1 for sizes above the largest class.
func classFor(n int) (int, int) {
	if n <= 1<<minClassShift {
		return 0, 1 << minClassShift
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxClassShift {
		return -1, n
	}
	return shift - minClassShift, 1 << shift
}
