package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVersionEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"Browser": "HeadlessChrome/120.0.0.0",
			"Protocol-Version": "1.3",
			"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/abc"
		}`))
	}))
	defer srv.Close()

	for _, addr := range []string{srv.URL, strings.TrimPrefix(srv.URL, "http://")} {
		ep, err := VersionEndpoint(context.Background(), addr)
		if err != nil {
			t.Fatalf("%s: %v", addr, err)
		}
		if ep.Addr != "ws://127.0.0.1:9222/devtools/browser/abc" || ep.ProtocolVersion != "1.3" {
			t.Fatalf("%s: unexpected endpoint %+v", addr, ep)
		}
	}
}

func TestVersionEndpointMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Browser": "x"}`))
	}))
	defer srv.Close()

	if _, err := VersionEndpoint(context.Background(), srv.URL); err == nil {
		t.Fatal("expect error when webSocketDebuggerUrl is missing")
	}
}
