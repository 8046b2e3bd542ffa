package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport carries one message per WebSocket text message. Inbound
// messages are handed out in chunks of at most len(buf) bytes; the chunk that
// hits the end of the message is final.
type WebSocketTransport struct {
	conn         *websocket.Conn
	reader       io.Reader // Reader of the current inbound message, nil between messages
	writeTimeout time.Duration
}

// NewWebSocketTransport wraps an established connection (client or server side).
func NewWebSocketTransport(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (t *WebSocketTransport) Send(ctx context.Context, msg []byte) error {
	if err := t.conn.SetWriteDeadline(writeDeadline(ctx, t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, msg)
}

func (t *WebSocketTransport) Receive(ctx context.Context, buf []byte) (int, bool, error) {
	stop := interruptOnCancel(ctx, t.conn.SetReadDeadline)
	defer stop()

	for t.reader == nil {
		messageType, r, err := t.conn.NextReader()
		if err != nil {
			return 0, false, readErr(ctx, err)
		}
		// Control frames are handled inside gorilla; only data messages reach us.
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			t.reader = r
		}
	}

	n, err := io.ReadFull(t.reader, buf)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		// End of message: io.EOF when it ended exactly on the previous chunk.
		t.reader = nil
		return n, true, nil
	default:
		t.reader = nil
		return n, false, readErr(ctx, err)
	}
}

// Ping sends a WebSocket ping control frame. Safe to call concurrently with Send.
func (t *WebSocketTransport) Ping(ctx context.Context) error {
	deadline := writeDeadline(ctx, t.writeTimeout)
	if deadline.IsZero() {
		deadline = time.Now().Add(10 * time.Second)
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// Close sends a normal-closure close frame, then closes the socket.
func (t *WebSocketTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *WebSocketTransport) Abort() error {
	return t.conn.Close()
}

// WebSocketDialer dials ws:// and wss:// endpoints.
type WebSocketDialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

func NewWebSocketDialer(opts Options) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   opts.ReadBufferSize,
			WriteBufferSize:  opts.WriteBufferSize,
		},
		writeTimeout: opts.WriteTimeout,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed (%s): %w", addr, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", addr, err)
	}
	return NewWebSocketTransport(conn, d.writeTimeout), nil
}
