package transport

import (
	"sync"
	"testing"
)

func TestRentSizeClasses(t *testing.T) {
	p := NewBufferPool(2)

	cases := []struct {
		min, wantLen int
	}{
		{0, 512},
		{1, 512},
		{512, 512},
		{513, 1024},
		{4096, 4096},
		{4097, 8192},
		{1 << 24, 1 << 24},
		{1<<24 + 1, 1<<24 + 1}, // above the largest class: exact allocation
	}

	for _, tc := range cases {
		buf := p.Rent(tc.min)
		if len(buf) != tc.wantLen {
			t.Errorf("Rent(%d): expect len %d, got %d", tc.min, tc.wantLen, len(buf))
		}
		p.Return(buf)
	}
}

func TestReturnedBufferIsReused(t *testing.T) {
	p := NewBufferPool(1)

	buf := p.Rent(1000)
	buf[0] = 0xAB
	p.Return(buf)

	again := p.Rent(700) // same 1024 class
	if &again[0] != &buf[0] {
		t.Fatal("expect the returned buffer to be rented again")
	}
	if again[0] != 0xAB {
		t.Fatal("rented buffers are not zeroed")
	}
}

func TestReturnDropsForeignBuffers(t *testing.T) {
	p := NewBufferPool(1)

	p.Return(make([]byte, 1000)) // not a power of two
	p.Return(make([]byte, 64))   // below the smallest class

	for i := range p.classes {
		if n := len(p.classes[i]); n != 0 {
			t.Fatalf("class %d holds %d foreign buffers", i, n)
		}
	}
}

func TestReturnBeyondCapacityIsDropped(t *testing.T) {
	p := NewBufferPool(1)

	p.Return(make([]byte, 512))
	p.Return(make([]byte, 512)) // free list already full, must not block

	if n := len(p.classes[0]); n != 1 {
		t.Fatalf("expect 1 idle buffer, got %d", n)
	}
}

func TestPoolConcurrent(t *testing.T) {
	p := NewBufferPool(4)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := p.Rent(512 << (j % 4))
				buf[0] = byte(n)
				p.Return(buf)
			}
		}(i)
	}
	wg.Wait()
}

func TestIdleCountsFreeBuffers(t *testing.T) {
	p := NewBufferPool(2)
	if p.Idle(1024) != 0 {
		t.Fatal("new pool must be empty")
	}

	p.Return(p.Rent(1000))
	if p.Idle(700) != 1 || p.Idle(4096) != 0 {
		t.Fatalf("expect one idle 1024 buffer, got %d / %d", p.Idle(700), p.Idle(4096))
	}
	if p.Idle(1<<24+1) != 0 {
		t.Fatal("oversized requests have no class")
	}
}
