// Package server implements a loopback debugging peer: it answers commands
// and pushes events the way a browser's debugging endpoint does. Tests and the
// CLI use it to exercise the client end to end.
//
// Request processing pipeline:
//
//	Accept (TCP / WebSocket upgrade) → handleSession (single reader, Reassembler)
//	  → for each request: go handleRequest (parallel processing)
//	    → decode → Middleware Chain → businessHandler (handler or reflect.Call) → encode → write response
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"devtools-rpc/message"
	"devtools-rpc/middleware"
	"devtools-rpc/registry"
	"devtools-rpc/transport"
)

// Error codes answered by the peer itself.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeServer         = -32000
)

// Server is the debugging peer.
type Server struct {
	serviceMap  map[string]*service               // Reflection services: "Target" → *service
	handlers    map[string]middleware.HandlerFunc // Plain handlers: "Target.createTarget" → func
	middlewares []middleware.Middleware           // Applied in the order they are added
	handler     middleware.HandlerFunc            // middleware(middleware(...(businessHandler)))
	buildOnce   sync.Once

	mu       sync.Mutex
	sessions map[*session]struct{} // Live sessions, for Emit / Disconnect / Shutdown

	listener   net.Listener // Stream listener, nil when serving WebSocket only
	httpServer *http.Server
	upgrader   websocket.Upgrader
	frameSize  int // Max bytes per outbound frame, 0 = whole message
	pool       *transport.BufferPool

	wg       sync.WaitGroup // Tracks in-flight requests for graceful shutdown
	shutdown atomic.Bool    // Set during shutdown to suppress Accept errors

	registry registry.Registry // Where the endpoint was published, nil if not
	name     string

	log *zap.Logger
}

// session is one connected client.
type session struct {
	t       transport.Transport
	path    string     // Request path for WebSocket sessions, e.g. /devtools/page/T1
	writeMu sync.Mutex // Shared by all request goroutines of this session
	ctx     context.Context
	cancel  context.CancelFunc
}

func (s *session) send(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.t.Send(ctx, data)
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.log = logger }
}

// WithFrameSize splits every outbound message into frames of at most n bytes,
// on both stream and WebSocket sessions.
func WithFrameSize(n int) Option {
	return func(s *Server) { s.frameSize = n }
}

// NewServer creates a peer with no commands.
func NewServer(opts ...Option) *Server {
	s := &Server{
		serviceMap: make(map[string]*service),
		handlers:   make(map[string]middleware.HandlerFunc),
		sessions:   make(map[*session]struct{}),
		pool:       transport.DefaultPool,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		WriteBufferSize: s.frameSize,
	}
	return s
}

// Register serves the commands of domainName with rcvr's methods.
func (svr *Server) Register(domainName string, rcvr any) error {
	svc, err := NewService(domainName, rcvr)
	if err != nil {
		return err
	}
	svr.serviceMap[svc.name] = svc
	return nil
}

// Handle serves one command with h. It takes precedence over Register.
func (svr *Server) Handle(method string, h middleware.HandlerFunc) {
	svr.handlers[method] = h
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

func (svr *Server) chain() middleware.HandlerFunc {
	// Build the chain once, not per request.
	svr.buildOnce.Do(func() {
		svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)
	})
	return svr.handler
}

// Serve listens on network/address and serves framed stream sessions.
func (svr *Server) Serve(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(l)
}

// ServeListener serves framed stream sessions accepted from l.
func (svr *Server) ServeListener(l net.Listener) error {
	svr.mu.Lock()
	svr.listener = l
	svr.mu.Unlock()
	svr.chain()

	// Shutdown may have run before the listener was stored.
	if svr.shutdown.Load() {
		l.Close()
		return nil
	}

	// Accept loop: one goroutine per session
	for {
		conn, err := l.Accept()
		if err != nil {
			// listener.Close() during shutdown makes Accept fail.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		t := transport.NewStreamTransport(conn, svr.frameSize, 0)
		go svr.ServeTransport(t, "")
	}
}

// ServeWebSocket serves WebSocket sessions on l. Any request path is accepted
// and recorded, so derived per-target addresses work too.
func (svr *Server) ServeWebSocket(l net.Listener) error {
	svr.mu.Lock()
	svr.httpServer = &http.Server{Handler: svr}
	hs := svr.httpServer
	svr.mu.Unlock()
	svr.chain()

	if svr.shutdown.Load() {
		l.Close()
		return nil
	}

	err := hs.Serve(l)
	if errors.Is(err, http.ErrServerClosed) && svr.shutdown.Load() {
		return nil
	}
	return err
}

// ServeHTTP upgrades the request to a WebSocket session.
func (svr *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := svr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		svr.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	svr.ServeTransport(transport.NewWebSocketTransport(conn, 0), r.URL.Path)
}

// ServeTransport runs one session on t until the peer goes away. It blocks.
func (svr *Server) ServeTransport(t transport.Transport, path string) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{t: t, path: path, ctx: ctx, cancel: cancel}

	svr.mu.Lock()
	svr.sessions[sess] = struct{}{}
	svr.mu.Unlock()

	defer func() {
		svr.mu.Lock()
		delete(svr.sessions, sess)
		svr.mu.Unlock()
		cancel()
		t.Close()
	}()

	handler := svr.chain()
	r := transport.NewReassembler(t, svr.pool, 0)
	defer r.Release()

	for {
		// Single reader per session.
		msg, err := r.Next(ctx)
		if err != nil {
			svr.log.Debug("session ended", zap.String("path", path), zap.Error(err))
			return
		}

		// The reassembler reuses msg, so each request gets its own copy.
		data := append([]byte(nil), msg...)

		// Without `go` a slow handler would block every later request.
		svr.wg.Add(1)
		go svr.handleRequest(sess, handler, data)
	}
}

// handleRequest processes one command: decode → middleware → handler → encode → write.
func (svr *Server) handleRequest(sess *session, handler middleware.HandlerFunc, data []byte) {
	defer svr.wg.Done()

	// Step 1: decode the request envelope
	var req message.Request
	if err := json.Unmarshal(data, &req); err != nil {
		svr.log.Warn("dropping malformed request", zap.Error(err))
		return
	}

	// Step 2: middleware chain → business handler
	result, err := svr.invoke(sess.ctx, handler, &req)

	resp := message.Response{ID: req.ID}
	if err != nil {
		resp.Error = toErrorInfo(err)
	} else {
		resp.Result = result
		if len(resp.Result) == 0 {
			resp.Result = json.RawMessage("{}")
		}
	}

	// Step 3: encode and write under the session's write lock
	out, err := json.Marshal(&resp)
	if err != nil {
		svr.log.Error("failed to encode response", zap.String("method", req.Method), zap.Error(err))
		return
	}
	if err := sess.send(sess.ctx, out); err != nil {
		svr.log.Debug("failed to write response", zap.String("method", req.Method), zap.Error(err))
	}
}

func (svr *Server) invoke(ctx context.Context, handler middleware.HandlerFunc, req *message.Request) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &message.ErrorInfo{Code: CodeInternal, Message: fmt.Sprint(p)}
		}
	}()
	return handler(ctx, req)
}

func toErrorInfo(err error) *message.ErrorInfo {
	var info *message.ErrorInfo
	if errors.As(err, &info) {
		return info
	}
	return &message.ErrorInfo{Code: CodeServer, Message: err.Error()}
}

// businessHandler dispatches a command to a plain handler or a registered
// service. It is wrapped by the middleware chain.
func (svr *Server) businessHandler(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	if h, ok := svr.handlers[req.Method]; ok {
		return h(ctx, req)
	}

	notFound := &message.ErrorInfo{
		Code:    CodeMethodNotFound,
		Message: fmt.Sprintf("'%s' wasn't found", req.Method),
	}

	domainName, name, ok := message.SplitMethod(req.Method)
	if !ok {
		return nil, notFound
	}
	svc, ok := svr.serviceMap[domainName]
	if !ok {
		return nil, notFound
	}
	method, ok := svc.method[name]
	if !ok {
		return nil, notFound
	}

	// reflect.New(args) → *Args, reflect.New(reply) → *Reply
	argv := reflect.New(method.ArgType)
	replyv := reflect.New(method.ReplyType)

	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, argv.Interface()); err != nil {
			return nil, &message.ErrorInfo{Code: CodeInvalidParams, Message: err.Error()}
		}
	}

	if err := svc.Call(method, argv, replyv); err != nil {
		return nil, err
	}
	return json.Marshal(replyv.Interface())
}

// Emit pushes an event to every live session.
func (svr *Server) Emit(ctx context.Context, method string, params any) error {
	ev := message.Event{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		ev.Params = raw
	}

	data, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	return svr.Broadcast(ctx, data)
}

// Broadcast writes raw bytes as one message to every live session.
func (svr *Server) Broadcast(ctx context.Context, data []byte) error {
	var errs []error
	for _, sess := range svr.liveSessions() {
		if err := sess.send(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sessions returns the number of live sessions.
func (svr *Server) Sessions() int {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	return len(svr.sessions)
}

// Disconnect drops every live session abruptly, as a crashing browser would.
func (svr *Server) Disconnect() {
	for _, sess := range svr.liveSessions() {
		sess.t.Abort()
	}
}

func (svr *Server) liveSessions() []*session {
	svr.mu.Lock()
	defer svr.mu.Unlock()

	list := make([]*session, 0, len(svr.sessions))
	for sess := range svr.sessions {
		list = append(list, sess)
	}
	return list
}

// Addr returns the stream listener's address, or nil.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// Publish stores this peer's endpoint in reg under name. Shutdown withdraws it.
func (svr *Server) Publish(ctx context.Context, reg registry.Registry, name string, ep registry.Endpoint, ttl int64) error {
	if err := reg.Publish(ctx, name, ep, ttl); err != nil {
		return err
	}
	svr.registry = reg
	svr.name = name
	return nil
}

// Shutdown performs graceful shutdown:
//  1. Withdraw the endpoint (clients stop resolving this peer)
//  2. Set the shutdown flag (so Accept errors are recognized as intentional)
//  3. Close the listeners and every session
//  4. Wait for in-flight requests to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Step 1: withdraw first, so no new client finds us
	if svr.registry != nil {
		if err := svr.registry.Withdraw(ctx, svr.name); err != nil {
			svr.log.Warn("failed to withdraw endpoint", zap.String("name", svr.name), zap.Error(err))
		}
	}

	// Step 2: flag before closing, or Serve would report the Accept error
	svr.shutdown.Store(true)

	svr.mu.Lock()
	l, hs := svr.listener, svr.httpServer
	svr.mu.Unlock()

	if l != nil {
		l.Close()
	}
	if hs != nil {
		hs.Shutdown(ctx)
	}
	for _, sess := range svr.liveSessions() {
		sess.cancel()
	}

	// Step 3: wait for in-flight requests
	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
