package client

import (
	"errors"
	"fmt"

	"devtools-rpc/message"
)

var (
	ErrClosed           = errors.New("client: connection closed")
	ErrNotConnected     = errors.New("client: connection not open")
	ErrAlreadyConnected = errors.New("client: connection already opened")
	ErrFault            = errors.New("client: connection fault")
	ErrInvalidMethod    = errors.New("client: method must look like Domain.name")
	ErrUnknownMethod    = errors.New("client: method not in catalog")
	ErrNoResult         = errors.New("client: response has neither result nor error")
)

// ProtocolError is the peer refusing one command. The connection stays usable.
type ProtocolError struct {
	Method string
	message.ErrorInfo
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("client: %s: %s", e.Method, e.ErrorInfo.Error())
}

// DecodeError is a response that could not be decoded into the expected shape.
// Only the command that received it fails.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("client: decode %s: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError is a terminal connection fault. errors.Is(err, ErrFault) holds.
type TransportError struct {
	Op  string // dial, send, receive, ping
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrFault, e.Err} }
