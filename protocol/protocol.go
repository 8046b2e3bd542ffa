// Package protocol implements the frame format used to carry debugging messages
// over plain byte streams (TCP, unix sockets, pipes).
//
// WebSocket already delimits messages and fragments them into frames with a FIN
// bit. A raw stream has neither, so every message is cut into one or more frames,
// each with a fixed 9-byte header; the last frame of a message carries FlagFinal.
//
// Frame format:
//
//	0      3  4  5         9
//	┌──────┬──┬──┬─────────┬───────────────┐
//	│magic │v │fl│ bodyLen │    body ...    │
//	│ dtp  │01│  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Magic number bytes: "dtp" (devtools protocol).
// Used to reject peers that are not speaking this framing at all.
const (
	MagicNumber byte = 0x64 // 'd'
	MagicByte2  byte = 0x74 // 't'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 9 // 3 (magic) + 1 (version) + 1 (flags) + 4 (bodyLen)
)

// Frame flags.
const (
	FlagFinal byte = 0x01 // Last frame of a message
)

// Header represents the fixed 9-byte frame header.
type Header struct {
	Flags   byte
	BodyLen uint32 // Body length in bytes, may be 0
}

// Final reports whether the frame ends its message.
func (h *Header) Final() bool {
	return h.Flags&FlagFinal != 0
}

// Encode writes a complete frame (header + body) to w.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different messages will interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.Flags
	binary.BigEndian.PutUint32(buf[5:9], h.BodyLen)

	b := net.Buffers{buf, body}
	_, err := b.WriteTo(w)
	return err
}

// EncodeMessage cuts msg into frames of at most frameSize body bytes and writes
// them in order. frameSize <= 0 sends the whole message as one frame.
// An empty message is still one (final, empty) frame.
func EncodeMessage(w io.Writer, msg []byte, frameSize int) error {
	if frameSize <= 0 || frameSize >= len(msg) {
		return Encode(w, &Header{Flags: FlagFinal, BodyLen: uint32(len(msg))}, msg)
	}

	for off := 0; off < len(msg); off += frameSize {
		end := min(off+frameSize, len(msg))
		h := Header{BodyLen: uint32(end - off)}
		if end == len(msg) {
			h.Flags |= FlagFinal
		}
		if err := Encode(w, &h, msg[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeader reads and validates one frame header. The body is left on r so the
// caller can read it in pieces into buffers it owns.
func ReadHeader(r io.Reader) (*Header, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4]&^FlagFinal != 0 {
		return nil, fmt.Errorf("unsupported frame flags: %#x", headerBuf[4])
	}

	return &Header{
		Flags:   headerBuf[4],
		BodyLen: binary.BigEndian.Uint32(headerBuf[5:9]),
	}, nil
}

// Decode reads a complete frame (header + body) from r.
func Decode(r io.Reader) (*Header, []byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, nil, err
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
