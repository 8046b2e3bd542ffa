// Package message defines the envelopes exchanged with the remote debugging peer.
//
// Every message on the wire is one JSON object. Its kind is decided after probing
// only the two discriminating fields, never by decoding the whole payload:
//
//	{"id": 7, "result": {...}}                    → Response (success)
//	{"id": 7, "error": {"code": -32000, ...}}     → Response (protocol error)
//	{"method": "Page.loadEventFired", "params"..} → Event
//	anything else                                 → Unknown
package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies an inbound message.
type Kind int

const (
	KindUnknown  Kind = iota // Unparseable, or neither an id nor a "Domain.Name" method
	KindResponse             // Carries an id, answers a previously sent Request
	KindEvent                // Carries a method and no id, pushed by the peer
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Request is a command sent to the peer. Outbound only.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`           // "Domain.command"
	Params json.RawMessage `json:"params,omitempty"` // Omitted when the command takes no parameters
}

// Response answers exactly one Request. Exactly one of Result / Error is set.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// Event is a notification pushed by the peer. Inbound only, never answered.
type Event struct {
	Method string          `json:"method"` // "Domain.event"
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorInfo is the structured error the peer returns when it refuses a command.
type ErrorInfo struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorInfo) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Header is the minimal common shape {id?, method?} of an inbound message.
type Header struct {
	ID     int64
	HasID  bool
	Method string
}

// Probe extracts the Header without decoding the rest of the message.
// It returns false when data is not a valid JSON document.
func Probe(data []byte) (Header, bool) {
	if !gjson.ValidBytes(data) {
		return Header{}, false
	}

	fields := gjson.GetManyBytes(data, "id", "method")

	var h Header
	if fields[0].Type == gjson.Number {
		h.ID = fields[0].Int()
		h.HasID = true
	}
	if fields[1].Type == gjson.String {
		h.Method = fields[1].String()
	}
	return h, true
}

// Kind classifies the probed message. Any id makes it a Response, even when the
// id is unknown to the receiver; the router decides whether a waiter exists.
func (h Header) Kind() Kind {
	if h.HasID {
		return KindResponse
	}
	if _, _, ok := SplitMethod(h.Method); ok {
		return KindEvent
	}
	return KindUnknown
}

// SplitMethod splits "Domain.Name" on the first dot. Both halves must be non-empty.
// Names are case-sensitive and returned as-is.
func SplitMethod(method string) (domain, name string, ok bool) {
	domain, name, found := strings.Cut(method, ".")
	if !found || domain == "" || name == "" {
		return "", "", false
	}
	return domain, name, true
}

// EventParams returns a copy of the raw "params" member of an event, or nil
// when the event carries none. The copy outlives the receive buffer.
func EventParams(data []byte) []byte {
	params := gjson.GetBytes(data, "params")
	if !params.Exists() || params.Type == gjson.Null {
		return nil
	}
	return []byte(params.Raw)
}
