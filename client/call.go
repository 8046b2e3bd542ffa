package client

import (
	"context"
	"fmt"

	"devtools-rpc/domain"
	"devtools-rpc/message"
)

// Call sends a typed command and decodes its result. When the connection's
// catalog knows the command, params and result go through the catalog's
// encoder and decoder; otherwise through the connection's codec.
func Call[P, R any](ctx context.Context, c *Conn, cmd domain.Command[P, R], params P) (R, error) {
	var result R

	info, known := c.commandInfo(cmd.Method())
	if !known {
		raw, err := c.SendRequest(ctx, cmd.Method(), params)
		if err != nil {
			return result, err
		}
		if err := c.cfg.Codec.Decode(raw, &result); err != nil {
			return result, &DecodeError{Method: cmd.Method(), Err: err}
		}
		return result, nil
	}

	wire, err := info.Encode(params)
	if err != nil {
		return result, fmt.Errorf("client: encode %s params: %w", cmd.Method(), err)
	}
	raw, err := c.SendRequest(ctx, cmd.Method(), wire)
	if err != nil {
		return result, err
	}

	v, err := info.Decode(raw)
	if err != nil {
		return result, &DecodeError{Method: cmd.Method(), Err: err}
	}
	result, ok := v.(R)
	if !ok {
		return result, &DecodeError{Method: cmd.Method(), Err: fmt.Errorf("catalog decodes %T, expected %T", v, result)}
	}
	return result, nil
}

// commandInfo looks method up in the connection's catalog.
func (c *Conn) commandInfo(method string) (*domain.CommandInfo, bool) {
	domainName, name, ok := message.SplitMethod(method)
	if !ok {
		return nil, false
	}
	return c.cfg.Catalog.Command(domainName, name)
}

// On subscribes a typed handler to an event. The connection's catalog must
// contain the event's domain, otherwise the event goes to the unknown-event
// handler.
func On[T any](c *Conn, ev domain.Event[T], fn func(T)) *Subscription {
	return c.Subscribe(ev.Domain(), ev.Name(), func(payload any) {
		if v, ok := payload.(T); ok {
			fn(v)
		}
	})
}
