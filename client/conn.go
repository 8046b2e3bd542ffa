package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"devtools-rpc/message"
	"devtools-rpc/middleware"
	"devtools-rpc/transport"
)

// State is the lifecycle state of a Conn.
type State int32

const (
	StateIdle State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// faultBox lets the terminal error live in an atomic.Pointer.
type faultBox struct{ err error }

// Conn is one connection to a debugging endpoint.
//
// A Conn is created idle, opened once by Connect and closed once, by Close or
// by a transport fault. It is never reopened; use Derive or New for another.
type Conn struct {
	id   string
	addr string
	cfg  Config
	log  *zap.Logger

	mu    sync.Mutex // Serializes Connect and Close
	state atomic.Int32
	t     transport.Transport

	writeMu sync.Mutex // One writer on the transport at a time

	ids     idGenerator
	pending *pendingTable
	events  *eventRegistry
	invoke  middleware.HandlerFunc
	metrics *connMetrics
	set     *metrics.Set

	fault  atomic.Pointer[faultBox]
	cancel context.CancelFunc // Stops the receive loop and keep-alive
	done   chan struct{}      // Closed when the receive loop has exited

	closeOnce sync.Once
}

// New creates an unconnected Conn for addr.
func New(addr string, opts ...Option) *Conn {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	c := &Conn{
		id:      uuid.NewString(),
		addr:    addr,
		cfg:     cfg,
		pending: newPendingTable(),
		done:    make(chan struct{}),
	}
	c.log = cfg.Logger.With(zap.String("conn", c.id), zap.String("addr", addr))

	c.set = cfg.Metrics
	if c.set == nil {
		c.set = metrics.NewSet()
	}
	c.metrics = newConnMetrics(c.set, c.id, c.pending.Len)
	c.events = newEventRegistry(cfg.Catalog, cfg.OnUnknownEvent, c.log, c.metrics)
	c.invoke = middleware.Chain(cfg.Middlewares...)(c.roundTrip)
	return c
}

func (c *Conn) ID() string            { return c.id }
func (c *Conn) Addr() string          { return c.addr }
func (c *Conn) State() State          { return State(c.state.Load()) }
func (c *Conn) Pending() int          { return c.pending.Len() }
func (c *Conn) Config() Config        { return c.cfg }
func (c *Conn) Metrics() *metrics.Set { return c.set }

// Done is closed when the connection has stopped receiving, by Close or by a fault.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the terminal error: nil while the connection is usable, ErrClosed
// after Close, or the *TransportError that killed it.
func (c *Conn) Err() error {
	if f := c.fault.Load(); f != nil {
		return f.err
	}
	return nil
}

// Connect dials the endpoint and starts the receive loop.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateOpen, StateClosing:
		return ErrAlreadyConnected
	case StateClosed:
		return ErrClosed
	}

	dialer := c.cfg.Dialer
	if dialer == nil {
		var err error
		dialer, err = transport.DialerFor(c.addr, c.cfg.transportOptions())
		if err != nil {
			return &TransportError{Op: "dial", Err: err}
		}
	}

	t, err := c.dial(ctx, dialer)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransportError{Op: "dial", Err: err}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.t = t
	c.cancel = cancel
	c.state.Store(int32(StateOpen))

	go c.receiveLoop(loopCtx)
	if pinger, ok := t.(transport.Pinger); ok && c.cfg.KeepAlive > 0 {
		go c.keepAlive(loopCtx, pinger)
	}

	c.log.Info("connected")
	return nil
}

// dial tries the dialer up to DialRetries times with exponential backoff.
func (c *Conn) dial(ctx context.Context, dialer transport.Dialer) (transport.Transport, error) {
	attempt := func() (transport.Transport, error) {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()

		t, err := dialer.Dial(dialCtx, c.addr)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return t, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	expo.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.cfg.DialRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("dial failed, retrying", zap.Error(err), zap.Duration("backoff", next))
		}),
	)
}

// Close stops the receive loop, waits for it, then closes the transport and
// removes the connection's series from its metrics set. Outstanding requests
// fail with ErrClosed. No event handler runs after Close returns, so calling
// Close from inside an event handler deadlocks. Only the first call does
// anything; later calls return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.close()
	})
	return err
}

func (c *Conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := State(c.state.Swap(int32(StateClosing)))
	ownFault := c.fault.CompareAndSwap(nil, &faultBox{err: ErrClosed})

	defer c.metrics.unregister()

	if prev == StateIdle {
		// Never opened: no loop, no transport.
		c.pending.FailAll(ErrClosed)
		close(c.done)
		c.state.Store(int32(StateClosed))
		return nil
	}

	c.cancel()
	<-c.done

	var err error
	if ownFault {
		// The transport is still healthy; shut it down gracefully.
		err = c.t.Close()
	}
	c.state.Store(int32(StateClosed))
	c.log.Info("closed")
	return err
}

// fail records err as the terminal fault if none is recorded yet and aborts the
// transport, which makes the receive loop exit and broadcast the fault. It
// returns the fault that is actually recorded.
func (c *Conn) fail(err error) error {
	if c.fault.CompareAndSwap(nil, &faultBox{err: err}) {
		c.metrics.faults.Inc()
		c.log.Error("connection fault", zap.Error(err))
		_ = c.t.Abort()
	}
	return c.Err()
}

// receiveLoop is the only reader of the transport. It exits when Close cancels
// ctx or the transport fails, and fails every pending request on the way out.
func (c *Conn) receiveLoop(ctx context.Context) {
	defer close(c.done)

	r := transport.NewReassembler(c.t, c.cfg.Pool, c.cfg.BufferSize)
	defer r.Release()

	for {
		msg, err := r.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.fail(&TransportError{Op: "receive", Err: err})
			}
			break
		}
		c.route(msg)
		r.Release()
	}

	// Fault or ErrClosed, whichever was recorded first.
	fault := c.Err()
	if n := c.pending.FailAll(fault); n > 0 {
		c.log.Debug("failed pending requests", zap.Int("count", n), zap.Error(fault))
	}
	if errors.Is(fault, ErrFault) {
		c.cancel()
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed))
	}
}

// keepAlive pings the peer every KeepAlive interval. A failed ping is a fault.
func (c *Conn) keepAlive(ctx context.Context, p transport.Pinger) {
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.KeepAlive)
			c.writeMu.Lock()
			err := p.Ping(pingCtx)
			c.writeMu.Unlock()
			cancel()

			if err != nil {
				if ctx.Err() == nil {
					c.fail(&TransportError{Op: "ping", Err: err})
				}
				return
			}
		}
	}
}

// SendRequest sends method with params and waits for the result.
//
// params may be nil, a json.RawMessage, or any value the codec can encode. The
// returned error is a *ProtocolError when the peer refused the command, a fault
// (ErrClosed or *TransportError) when the connection died, or ctx.Err() when
// the caller gave up.
func (c *Conn) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	domainName, name, ok := message.SplitMethod(method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if c.cfg.StrictMethods {
		if _, known := c.cfg.Catalog.Command(domainName, name); !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
		}
	}

	var raw json.RawMessage
	switch p := params.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	default:
		data, err := c.cfg.Codec.Encode(params)
		if err != nil {
			return nil, fmt.Errorf("client: encode %s params: %w", method, err)
		}
		raw = data
	}

	return c.invoke(ctx, &message.Request{Method: method, Params: raw})
}

// roundTrip is the innermost handler of the middleware chain.
func (c *Conn) roundTrip(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	// 1. Fail fast on a dead connection without touching the transport.
	if err := c.Err(); err != nil {
		return nil, err
	}
	if c.State() != StateOpen {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. Register the waiter before the request can possibly be answered.
	req.ID = c.ids.Next()
	w, err := c.pending.Register(req.ID)
	if err != nil {
		return nil, err
	}

	data, err := c.cfg.Codec.Encode(req)
	if err != nil {
		c.pending.Cancel(req.ID)
		return nil, fmt.Errorf("client: encode %s: %w", req.Method, err)
	}

	// 3. Write under the connection's write lock.
	if err := c.write(ctx, data); err != nil {
		c.pending.Cancel(req.ID)
		return nil, err
	}
	c.metrics.requests.Inc()

	// 4. Wait for the receive loop, a fault broadcast, or the caller.
	select {
	case o := <-w.done:
		return c.settle(req.Method, o)
	case <-ctx.Done():
		if c.pending.Cancel(req.ID) {
			return nil, ctx.Err()
		}
		// Lost the race: the outcome is already in the channel.
		return c.settle(req.Method, <-w.done)
	}
}

func (c *Conn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// The caller may have given up, or the connection died, while we queued.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		return err
	}

	if err := c.t.Send(ctx, data); err != nil {
		// A partial write leaves the stream unusable, whatever the cause.
		return c.fail(&TransportError{Op: "send", Err: err})
	}
	return nil
}

func (c *Conn) settle(method string, o outcome) (json.RawMessage, error) {
	if o.err != nil {
		var de *DecodeError
		if errors.As(o.err, &de) && de.Method == "" {
			de.Method = method
		}
		return nil, o.err
	}
	if o.resp.Error != nil {
		c.metrics.protocolErrors.Inc()
		return nil, &ProtocolError{Method: method, ErrorInfo: *o.resp.Error}
	}
	if len(o.resp.Result) == 0 {
		return nil, &DecodeError{Method: method, Err: ErrNoResult}
	}
	return o.resp.Result, nil
}

// Subscribe registers fn for domainName.eventName. fn receives the payload
// decoded by the catalog; see On for the typed form. Events the catalog does
// not know always go to the unknown-event handler, so fn never runs for them;
// such a subscription is logged as a warning.
func (c *Conn) Subscribe(domainName, eventName string, fn Handler) *Subscription {
	return c.events.Subscribe(domainName, eventName, fn)
}

// Unsubscribe removes a subscription. It reports whether it was still active.
func (c *Conn) Unsubscribe(sub *Subscription) bool {
	return c.events.Unsubscribe(sub)
}

// Derive creates an unconnected Conn for a target reachable through the same
// endpoint. It copies c's configuration except Middlewares: middleware closures
// hold state, such as a rate limiter's bucket, so the new Conn gets only the
// ones passed in opts. The new Conn shares no state with c.
func (c *Conn) Derive(targetID string, opts ...Option) (*Conn, error) {
	addr, err := TargetAddress(c.addr, targetID)
	if err != nil {
		return nil, err
	}

	cfg := c.cfg
	cfg.Middlewares = nil
	return New(addr, append([]Option{WithConfig(cfg)}, opts...)...), nil
}

// TargetAddress maps scheme://host:port/... and a target id to
// scheme://host:port/devtools/page/<targetID>.
func TargetAddress(base, targetID string) (string, error) {
	if targetID == "" {
		return "", errors.New("client: empty target id")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("client: invalid address %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("client: address %q has no scheme or host", base)
	}

	derived := url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   "/devtools/page/" + targetID,
	}
	return derived.String(), nil
}
