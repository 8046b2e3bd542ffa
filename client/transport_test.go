package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"devtools-rpc/message"
	"devtools-rpc/transport"
)

// chunk is one transport read scripted by a test.
type chunk struct {
	data  []byte
	final bool
	err   error
}

// fakeTransport is an in-process transport. Tests play the peer: they read
// requests from sent and push responses and events into inbound.
type fakeTransport struct {
	inbound chan chunk
	sent    chan []byte

	mu      sync.Mutex
	rest    []byte // Unread part of the current chunk
	final   bool
	sendErr error

	closed    chan struct{}
	closeOnce sync.Once
	graceful  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan chunk, 256),
		sent:    make(chan []byte, 256),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, msg []byte) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	f.sent <- append([]byte(nil), msg...)
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context, buf []byte) (int, bool, error) {
	f.mu.Lock()
	if len(f.rest) > 0 {
		n := copy(buf, f.rest)
		f.rest = f.rest[n:]
		final := f.final && len(f.rest) == 0
		f.mu.Unlock()
		return n, final, nil
	}
	f.mu.Unlock()

	select {
	case c := <-f.inbound:
		if c.err != nil {
			return 0, false, c.err
		}
		n := copy(buf, c.data)

		f.mu.Lock()
		f.rest = c.data[n:]
		f.final = c.final
		f.mu.Unlock()
		return n, c.final && n == len(c.data), nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	case <-f.closed:
		return 0, false, io.EOF
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.graceful = true
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) Abort() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// deliver pushes msg split into k chunks, final flag on the last one only.
func (f *fakeTransport) deliver(msg string, k int) {
	data := []byte(msg)
	size := (len(data) + k - 1) / k
	for i := 0; i < k; i++ {
		start, end := i*size, (i+1)*size
		if start > len(data) {
			start = len(data)
		}
		if end > len(data) || i == k-1 {
			end = len(data)
		}
		f.inbound <- chunk{data: data[start:end], final: i == k-1}
	}
}

// nextRequest waits for the next request written by the client.
func (f *fakeTransport) nextRequest(t *testing.T) message.Request {
	t.Helper()

	select {
	case data := <-f.sent:
		var req message.Request
		if err := json.Unmarshal(data, &req); err != nil {
			t.Fatalf("client sent malformed request %s: %v", data, err)
		}
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a request")
		return message.Request{}
	}
}

func (f *fakeTransport) reply(id int64, result string, k int) {
	f.deliver(`{"id":`+itoa(id)+`,"result":`+result+`}`, k)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

// newTestConn returns a connected Conn on a fresh fakeTransport.
func newTestConn(t *testing.T, opts ...Option) (*Conn, *fakeTransport) {
	t.Helper()

	ft := newFakeTransport()
	dialer := transport.DialerFunc(func(ctx context.Context, addr string) (transport.Transport, error) {
		return ft, nil
	})

	all := append([]Option{WithLogger(zaptest.NewLogger(t)), WithDialer(dialer)}, opts...)
	c := New("ws://127.0.0.1:9222/devtools/browser/test", all...)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, ft
}

var errBoom = errors.New("boom")
