package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

type chunk struct {
	data  []byte
	final bool
}

// scriptTransport replays a fixed sequence of chunks, then reports io.EOF.
type scriptTransport struct {
	chunks []chunk
	err    error
}

func (s *scriptTransport) Send(ctx context.Context, msg []byte) error { return nil }
func (s *scriptTransport) Close() error                               { return nil }
func (s *scriptTransport) Abort() error                               { return nil }

func (s *scriptTransport) Receive(ctx context.Context, buf []byte) (int, bool, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return 0, false, s.err
		}
		return 0, false, io.EOF
	}

	c := s.chunks[0]
	n := copy(buf, c.data)
	if n < len(c.data) {
		s.chunks[0].data = c.data[n:]
		return n, false, nil
	}
	s.chunks = s.chunks[1:]
	return n, c.final, nil
}

// frames cuts msg into k frames of near-equal size, FIN only on the last.
func frames(msg []byte, k int) []chunk {
	out := make([]chunk, 0, k)
	size := (len(msg) + k - 1) / k
	for i := 0; i < k; i++ {
		start := min(i*size, len(msg))
		end := min(start+size, len(msg))
		out = append(out, chunk{data: msg[start:end], final: i == k-1})
	}
	return out
}

func TestReassemblerFragmentationTransparency(t *testing.T) {
	msg := []byte(`{"id":1,"result":{"targetId":"T1","padding":"0123456789abcdefghijklmnopqrstuvwxyz"}}`)

	for _, k := range []int{1, 2, 37} {
		for _, bufferSize := range []int{8, 64, 4096} {
			st := &scriptTransport{chunks: frames(msg, k)}
			r := NewReassembler(st, NewBufferPool(2), bufferSize)

			got, err := r.Next(context.Background())
			if err != nil {
				t.Fatalf("k=%d buffer=%d: Next failed: %v", k, bufferSize, err)
			}
			if !bytes.Equal(got, msg) {
				t.Fatalf("k=%d buffer=%d: got %s", k, bufferSize, got)
			}
			r.Release()
		}
	}
}

func TestReassemblerSequentialMessages(t *testing.T) {
	first := []byte(`{"method":"Target.targetCreated","params":{}}`)
	second := []byte(`{"id":2,"result":{}}`)

	st := &scriptTransport{chunks: append(frames(first, 5), frames(second, 1)...)}
	r := NewReassembler(st, nil, 16)

	got, err := r.Next(context.Background())
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("first message: %s (%v)", got, err)
	}
	got, err = r.Next(context.Background())
	if err != nil || !bytes.Equal(got, second) {
		t.Fatalf("second message: %s (%v)", got, err)
	}
	if _, err := r.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expect io.EOF after the script, got %v", err)
	}
}

func TestReassemblerSingleChunkIsZeroCopy(t *testing.T) {
	st := &scriptTransport{chunks: []chunk{{data: []byte(`{"id":1,"result":{}}`), final: true}}}
	r := NewReassembler(st, nil, 64)

	got, err := r.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if &got[0] != &r.readBuf[0] {
		t.Fatal("single-chunk message should alias the receive buffer")
	}
	if r.acc != nil {
		t.Fatal("single-chunk message should not rent an accumulation buffer")
	}
}

func TestReassemblerGrowsGeometrically(t *testing.T) {
	msg := bytes.Repeat([]byte("x"), 100_000)
	pool := NewBufferPool(4)

	st := &scriptTransport{chunks: frames(msg, 3)}
	r := NewReassembler(st, pool, 512)

	got, err := r.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("reassembled %d bytes, expect %d", len(got), len(msg))
	}
	if c := cap(r.acc); c&(c-1) != 0 || c < len(msg) {
		t.Fatalf("accumulation buffer should be a power of two >= message size, got %d", c)
	}

	r.Release()
	if r.acc != nil {
		t.Fatal("Release should drop the accumulation buffer")
	}
	cls, _ := classFor(len(msg))
	if len(pool.classes[cls]) != 1 {
		t.Fatal("Release should return the accumulation buffer to the pool")
	}
}

func TestReassemblerErrorMidMessage(t *testing.T) {
	boom := errors.New("connection reset")
	st := &scriptTransport{
		chunks: []chunk{{data: []byte(`{"id":1,`)}},
		err:    boom,
	}
	r := NewReassembler(st, nil, 4)

	if _, err := r.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expect transport error, got %v", err)
	}
}
