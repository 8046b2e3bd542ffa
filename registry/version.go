package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// versionInfo is the body of GET /json/version on a debugging endpoint.
type versionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// VersionEndpoint asks the HTTP side of a debugging endpoint for its browser
// WebSocket address. httpAddr is "host:port" or an http(s) URL.
func VersionEndpoint(ctx context.Context, httpAddr string) (Endpoint, error) {
	base := httpAddr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return Endpoint{}, fmt.Errorf("registry: invalid address %q: %w", httpAddr, err)
	}
	u.Path = "/json/version"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Endpoint{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Endpoint{}, fmt.Errorf("registry: query %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Endpoint{}, fmt.Errorf("registry: query %s: %s", u, resp.Status)
	}

	var info versionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Endpoint{}, fmt.Errorf("registry: decode %s: %w", u, err)
	}
	if info.WebSocketDebuggerURL == "" {
		return Endpoint{}, fmt.Errorf("registry: %s reports no webSocketDebuggerUrl", u)
	}

	return Endpoint{
		Addr:            info.WebSocketDebuggerURL,
		Browser:         info.Browser,
		ProtocolVersion: info.ProtocolVersion,
	}, nil
}
