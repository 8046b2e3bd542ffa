package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"devtools-rpc/protocol"
)

// StreamTransport carries messages over a raw stream connection using the frame
// format of package protocol. Each Receive returns bytes from at most one frame,
// so a message sent as 37 frames is seen as at least 37 chunks.
type StreamTransport struct {
	conn         net.Conn
	frameSize    int           // Max body bytes per outbound frame, 0 = whole message
	writeTimeout time.Duration // Used when the Send context has no deadline

	// Inbound frame state, owned by the single reader
	inFrame   bool
	remaining uint32 // Body bytes of the current frame not read yet
	final     bool   // Current frame ends its message
}

// NewStreamTransport wraps an established connection. Any net.Conn works: TCP,
// unix sockets, or net.Pipe for in-process peers.
func NewStreamTransport(conn net.Conn, frameSize int, writeTimeout time.Duration) *StreamTransport {
	return &StreamTransport{
		conn:         conn,
		frameSize:    frameSize,
		writeTimeout: writeTimeout,
	}
}

func (t *StreamTransport) Send(ctx context.Context, msg []byte) error {
	if err := t.conn.SetWriteDeadline(writeDeadline(ctx, t.writeTimeout)); err != nil {
		return err
	}
	return protocol.EncodeMessage(t.conn, msg, t.frameSize)
}

func (t *StreamTransport) Receive(ctx context.Context, buf []byte) (int, bool, error) {
	stop := interruptOnCancel(ctx, t.conn.SetReadDeadline)
	defer stop()

	for !t.inFrame {
		h, err := protocol.ReadHeader(t.conn)
		if err != nil {
			return 0, false, readErr(ctx, err)
		}
		if h.BodyLen == 0 {
			if h.Final() {
				return 0, true, nil
			}
			continue
		}
		t.inFrame, t.remaining, t.final = true, h.BodyLen, h.Final()
	}

	want := min(len(buf), int(t.remaining))
	n, err := io.ReadFull(t.conn, buf[:want])
	t.remaining -= uint32(n)
	if err != nil {
		return n, false, readErr(ctx, err)
	}

	if t.remaining == 0 {
		t.inFrame = false
		return n, t.final, nil
	}
	return n, false, nil
}

func (t *StreamTransport) Close() error {
	return t.conn.Close()
}

func (t *StreamTransport) Abort() error {
	return t.conn.Close()
}

// StreamDialer dials tcp://host:port and unix:///path addresses.
type StreamDialer struct {
	dialer       net.Dialer
	frameSize    int
	writeTimeout time.Duration
}

func NewStreamDialer(opts Options) *StreamDialer {
	return &StreamDialer{
		dialer:       net.Dialer{Timeout: opts.HandshakeTimeout},
		frameSize:    opts.FrameSize,
		writeTimeout: opts.WriteTimeout,
	}
}

func (d *StreamDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	network, address, err := splitStreamAddr(addr)
	if err != nil {
		return nil, err
	}

	conn, err := d.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("stream dial %s: %w", addr, err)
	}
	return NewStreamTransport(conn, d.frameSize, d.writeTimeout), nil
}

// splitStreamAddr turns "tcp://127.0.0.1:9222" into ("tcp", "127.0.0.1:9222")
// and "unix:///run/peer.sock" into ("unix", "/run/peer.sock").
func splitStreamAddr(addr string) (string, string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("transport: invalid address %q: %w", addr, err)
	}

	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("transport: missing host in %q", addr)
		}
		return "tcp", u.Host, nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return "", "", fmt.Errorf("transport: missing socket path in %q", addr)
		}
		return "unix", path, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
