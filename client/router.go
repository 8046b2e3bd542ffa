package client

import (
	"go.uber.org/zap"

	"devtools-rpc/message"
)

// route classifies one reassembled message and hands it on. It runs on the
// receive loop; msg is only valid until route returns.
func (c *Conn) route(msg []byte) {
	h, ok := message.Probe(msg)
	if !ok {
		c.unknownMessage(msg)
		return
	}

	switch h.Kind() {
	case message.KindResponse:
		c.routeResponse(h.ID, msg)
	case message.KindEvent:
		domainName, eventName, _ := message.SplitMethod(h.Method)
		c.events.dispatch(domainName, eventName, message.EventParams(msg))
	default:
		c.unknownMessage(msg)
	}
}

func (c *Conn) routeResponse(id int64, msg []byte) {
	c.metrics.responses.Inc()

	resp := new(message.Response)
	if err := c.cfg.Codec.Decode(msg, resp); err != nil {
		// Only the waiter for this id fails; the connection is fine.
		if c.pending.Reject(id, &DecodeError{Err: err}) {
			return
		}
	} else if c.pending.Resolve(id, resp) {
		return
	}

	c.metrics.droppedResponses.Inc()
	c.log.Debug("dropping response without waiter", zap.Int64("id", id))
}

func (c *Conn) unknownMessage(msg []byte) {
	c.metrics.unknownMessages.Inc()
	c.log.Debug("unknown message", zap.Int("size", len(msg)))

	if c.cfg.OnUnknownMessage != nil {
		c.cfg.OnUnknownMessage(append([]byte(nil), msg...))
	}
}
