package client

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"devtools-rpc/codec"
	"devtools-rpc/domain"
	"devtools-rpc/middleware"
	"devtools-rpc/transport"
)

// Config holds everything a Conn needs besides its address.
type Config struct {
	BufferSize    int           // Receive buffer size; also the growth threshold of the reassembler
	KeepAlive     time.Duration // Ping interval on transports that support it, 0 = off
	DialTimeout   time.Duration // Per dial attempt
	DialRetries   int           // Dial attempts in total, at least 1
	WriteTimeout  time.Duration // Per-message write deadline when the caller's ctx has none
	FrameSize     int           // Outbound frame size on stream transports, 0 = one frame per message
	StrictMethods bool          // Reject commands the catalog does not know before sending

	Logger           *zap.Logger
	Dialer           transport.Dialer // nil = pick by address scheme
	Pool             *transport.BufferPool
	Codec            codec.Codec
	Catalog          *domain.Catalog
	Middlewares      []middleware.Middleware
	OnUnknownEvent   UnknownEventHandler
	OnUnknownMessage UnknownMessageHandler
	Metrics          *metrics.Set // nil = a private set per connection
}

// DefaultConfig returns the configuration used when no option overrides it.
func DefaultConfig() Config {
	return Config{
		BufferSize:   transport.DefaultBufferSize,
		DialTimeout:  10 * time.Second,
		DialRetries:  1,
		WriteTimeout: 10 * time.Second,
		Logger:       zap.NewNop(),
		Pool:         transport.DefaultPool,
		Codec:        codec.Default,
	}
}

type Option func(*Config)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithDialer(d transport.Dialer) Option {
	return func(c *Config) { c.Dialer = d }
}

func WithCatalog(catalog *domain.Catalog) Option {
	return func(c *Config) { c.Catalog = catalog }
}

// WithMiddleware appends to the outbound pipeline; earlier ones are outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Config) { c.Middlewares = append(c.Middlewares, mws...) }
}

func WithUnknownEventHandler(h UnknownEventHandler) Option {
	return func(c *Config) { c.OnUnknownEvent = h }
}

func WithUnknownMessageHandler(h UnknownMessageHandler) Option {
	return func(c *Config) { c.OnUnknownMessage = h }
}

func WithMetrics(set *metrics.Set) Option {
	return func(c *Config) { c.Metrics = set }
}

func WithBufferSize(n int) Option {
	return func(c *Config) { c.BufferSize = n }
}

func WithKeepAlive(interval time.Duration) Option {
	return func(c *Config) { c.KeepAlive = interval }
}

// WithDialRetry sets the number of dial attempts and the per-attempt timeout.
func WithDialRetry(attempts int, timeout time.Duration) Option {
	return func(c *Config) {
		c.DialRetries = attempts
		c.DialTimeout = timeout
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = d }
}

func WithFrameSize(n int) Option {
	return func(c *Config) { c.FrameSize = n }
}

// WithStrictMethods makes SendRequest refuse methods missing from the catalog.
// WithPool sets the buffer pool the receive loop rents accumulation buffers from.
func WithPool(p *transport.BufferPool) Option {
	return func(c *Config) { c.Pool = p }
}

func WithStrictMethods() Option {
	return func(c *Config) { c.StrictMethods = true }
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.DialRetries < 1 {
		c.DialRetries = 1
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Pool == nil {
		c.Pool = def.Pool
	}
	if c.Codec == nil {
		c.Codec = def.Codec
	}
}

func (c *Config) transportOptions() transport.Options {
	return transport.Options{
		HandshakeTimeout: c.DialTimeout,
		WriteTimeout:     c.WriteTimeout,
		ReadBufferSize:   c.BufferSize,
		FrameSize:        c.FrameSize,
	}
}
