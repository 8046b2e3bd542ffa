package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"devtools-rpc/client"
	"devtools-rpc/domains"
	"devtools-rpc/domains/runtime"
	"devtools-rpc/domains/target"
	"devtools-rpc/message"
	"devtools-rpc/middleware"
	"devtools-rpc/registry"
	"devtools-rpc/server"
)

// Target implements the Target domain of the loopback peer.
type Target struct {
	mu    sync.Mutex
	count int
}

func (t *Target) CreateTarget(args *target.CreateTargetParams, reply *target.CreateTargetResult) error {
	if args.URL == "" {
		return errors.New("url required")
	}
	t.mu.Lock()
	t.count++
	t.mu.Unlock()
	reply.TargetID = "T1"
	return nil
}

func (t *Target) CloseTarget(args *target.CloseTargetParams, reply *target.CloseTargetResult) error {
	reply.Success = args.TargetID == "T1"
	return nil
}

// startPeer serves the loopback peer over a framed TCP stream. Every outbound
// message is cut into frames of frameSize bytes.
func startPeer(t testing.TB, frameSize int) (*server.Server, string) {
	t.Helper()

	svr := server.NewServer(server.WithLogger(zaptest.NewLogger(t)), server.WithFrameSize(frameSize))
	if err := svr.Register("Target", &Target{}); err != nil {
		t.Fatal(err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.ServeListener(l)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	return svr, "tcp://" + l.Addr().String()
}

func dial(t testing.TB, addr string, opts ...client.Option) *client.Conn {
	t.Helper()

	all := append([]client.Option{
		client.WithLogger(zaptest.NewLogger(t)),
		client.WithCatalog(domains.Catalog),
	}, opts...)

	c, err := client.Dial(context.Background(), addr, all...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCreateTargetAnsweredInTwoFrames(t *testing.T) {
	// {"id":1,"result":{"targetId":"T1"}} is 35 bytes: two frames of at most 18.
	_, addr := startPeer(t, 18)
	c := dial(t, addr)

	res, err := client.Call(context.Background(), c, target.CreateTarget, target.CreateTargetParams{URL: "about:blank"})
	if err != nil {
		t.Fatal(err)
	}
	if res.TargetID != "T1" {
		t.Fatalf("expect T1, got %q", res.TargetID)
	}
}

func TestProtocolErrorFromPeer(t *testing.T) {
	_, addr := startPeer(t, 0)
	c := dial(t, addr)

	_, err := client.Call(context.Background(), c, target.CreateTarget, target.CreateTargetParams{})
	var pe *client.ProtocolError
	if !errors.As(err, &pe) || pe.Code != server.CodeServer || pe.Message != "url required" {
		t.Fatalf("expect protocol error from peer, got %v", err)
	}

	_, err = client.Call(context.Background(), c, runtime.Evaluate, runtime.EvaluateParams{Expression: "1+1"})
	if !errors.As(err, &pe) || pe.Code != server.CodeMethodNotFound {
		t.Fatalf("expect method not found, got %v", err)
	}

	// Still usable.
	res, err := client.Call(context.Background(), c, target.CloseTarget, target.CloseTargetParams{TargetID: "T1"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result %+v, %v", res, err)
	}
}

func TestTypedEvents(t *testing.T) {
	svr, addr := startPeer(t, 7)
	c := dial(t, addr)

	created := make(chan target.TargetCreatedEvent, 1)
	client.On(c, target.TargetCreated, func(ev target.TargetCreatedEvent) { created <- ev })

	console := make(chan runtime.ConsoleAPICalledEvent, 1)
	sub := client.On(c, runtime.ConsoleAPICalled, func(ev runtime.ConsoleAPICalledEvent) { console <- ev })

	waitSessions(t, svr, 1)

	ctx := context.Background()
	svr.Emit(ctx, "Target.targetCreated", target.TargetCreatedEvent{TargetInfo: target.Info{TargetID: "T9", Type: "page"}})
	svr.Emit(ctx, "Runtime.consoleAPICalled", map[string]any{"type": "warning", "args": []any{}})

	select {
	case ev := <-created:
		if ev.TargetInfo.TargetID != "T9" || ev.TargetInfo.Type != "page" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("targetCreated not delivered")
	}

	select {
	case ev := <-console:
		if ev.Type != runtime.ConsoleWarning {
			t.Fatalf("expect warning, got %s", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consoleAPICalled not delivered")
	}

	if !c.Unsubscribe(sub) {
		t.Fatal("expect active subscription")
	}
}

func TestPeerCrashFailsPending(t *testing.T) {
	svr := server.NewServer()
	svr.Handle("Runtime.evaluate", func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.ServeListener(l)
	defer svr.Shutdown(time.Second)

	c := dial(t, "tcp://"+l.Addr().String())

	const k = 5
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		go func() {
			_, err := c.SendRequest(context.Background(), "Runtime.evaluate", runtime.EvaluateParams{Expression: "hang()"})
			errs <- err
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.Pending() < k {
		if time.Now().After(deadline) {
			t.Fatalf("only %d requests pending", c.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}

	svr.Disconnect()

	var first error
	for i := 0; i < k; i++ {
		err := <-errs
		if !errors.Is(err, client.ErrFault) {
			t.Fatalf("expect fault, got %v", err)
		}
		if first == nil {
			first = err
		} else if err != first {
			t.Fatalf("expect one shared fault, got %v and %v", first, err)
		}
	}
	if c.Pending() != 0 {
		t.Fatalf("expect empty table, got %d", c.Pending())
	}
}

func TestWebSocketDerivedTarget(t *testing.T) {
	svr := server.NewServer(server.WithLogger(zaptest.NewLogger(t)), server.WithFrameSize(16))
	svr.Register("Target", &Target{})
	hs := httptest.NewServer(svr)
	defer hs.Close()

	base := "ws" + strings.TrimPrefix(hs.URL, "http") + "/devtools/browser/abc"
	browser := dial(t, base, client.WithMiddleware(
		middleware.LoggingMiddleware(zaptest.NewLogger(t)),
		middleware.TimeOutMiddleware(5*time.Second),
	))

	page, err := target.CreateTargetConn(context.Background(), browser, target.CreateTargetParams{URL: "about:blank"},
		client.WithMiddleware(middleware.TimeOutMiddleware(5*time.Second)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(page.Addr(), "/devtools/page/T1") {
		t.Fatalf("unexpected page address %s", page.Addr())
	}
	if err := page.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer page.Close()

	res, err := client.Call(context.Background(), page, target.CloseTarget, target.CloseTargetParams{TargetID: "T1"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result %+v, %v", res, err)
	}
}

func TestDialNamed(t *testing.T) {
	_, addr := startPeer(t, 0)

	reg := registry.NewStaticRegistry()
	reg.Publish(context.Background(), "chrome", registry.Endpoint{Addr: addr}, 0)

	c, err := client.DialNamed(context.Background(), reg, "chrome", client.WithCatalog(domains.Catalog))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := client.DialNamed(context.Background(), reg, "firefox"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}
}

func waitSessions(t *testing.T, svr *server.Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for svr.Sessions() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expect %d sessions, got %d", n, svr.Sessions())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
