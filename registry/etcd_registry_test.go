package registry

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// newTestEtcdRegistry connects to DEVTOOLS_ETCD_ENDPOINTS or skips.
func newTestEtcdRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()

	endpoints := os.Getenv("DEVTOOLS_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("DEVTOOLS_ETCD_ENDPOINTS not set")
	}

	reg, err := NewEtcdRegistry(strings.Split(endpoints, ","), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestEtcdPublishAndResolve(t *testing.T) {
	reg := newTestEtcdRegistry(t)
	ctx := context.Background()

	ep := Endpoint{Addr: "ws://127.0.0.1:9222/devtools/browser/abc", Browser: "HeadlessChrome/120"}
	if err := reg.Publish(ctx, "test-browser", ep, 10); err != nil {
		t.Fatal(err)
	}

	got, err := reg.Resolve(ctx, "test-browser")
	if err != nil {
		t.Fatal(err)
	}
	if got != ep {
		t.Fatalf("expect %+v, got %+v", ep, got)
	}

	if err := reg.Withdraw(ctx, "test-browser"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := reg.Resolve(ctx, "test-browser"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound after withdraw, got %v", err)
	}
}

func TestEtcdWatch(t *testing.T) {
	reg := newTestEtcdRegistry(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := reg.Watch(ctx, "test-watch")
	time.Sleep(100 * time.Millisecond)

	ep := Endpoint{Addr: "tcp://127.0.0.1:9333"}
	if err := reg.Publish(ctx, "test-watch", ep, 0); err != nil {
		t.Fatal(err)
	}
	if got := <-updates; got != ep {
		t.Fatalf("expect %+v, got %+v", ep, got)
	}

	if err := reg.Withdraw(ctx, "test-watch"); err != nil {
		t.Fatal(err)
	}
	if got := <-updates; got != (Endpoint{}) {
		t.Fatalf("expect zero endpoint after withdraw, got %+v", got)
	}
}
