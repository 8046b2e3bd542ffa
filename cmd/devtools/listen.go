package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"devtools-rpc/client"
)

// eventLine is one printed event
type eventLine struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

var listenCmd = &cobra.Command{
	Use:   "listen [Domain.event | Domain ...]",
	Short: "Print pushed events as JSON lines",
	Long: WrapString(`Prints every event the endpoint pushes, one JSON object per line, until interrupted or --duration elapses. Arguments filter by full method name or by domain. Use --send to issue commands (such as Target.setDiscoverTargets) once connected.`) +
		"\n\nExample:\n  devtools listen Target --send 'Target.setDiscoverTargets={\"discover\":true}'",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		match := eventFilter(args)

		var outMu sync.Mutex
		enc := json.NewEncoder(os.Stdout)
		emit := func(domainName, eventName string, params []byte) {
			method := domainName + "." + eventName
			if !match(method) {
				return
			}
			outMu.Lock()
			defer outMu.Unlock()
			if err := enc.Encode(eventLine{Method: method, Params: params}); err != nil {
				logger.Warn("failed to print event", zap.String("method", method), zap.Error(err))
			}
		}

		// Nothing is subscribed, so every event reaches the unknown sink raw.
		conn, err := connect(cmd.Context(), logger, client.WithUnknownEventHandler(emit))
		if err != nil {
			return err
		}
		defer conn.Close()
		defer writeMetrics() // Before Close drops the series

		for _, s := range viper.GetStringSlice("send") {
			method, params, err := splitSend(s)
			if err != nil {
				return err
			}
			if _, err := conn.SendRequest(cmd.Context(), method, params); err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stop)

		var timeout <-chan time.Time
		if d := viper.GetDuration("duration"); d > 0 {
			timeout = time.After(d)
		}

		select {
		case <-stop:
			return nil
		case <-timeout:
			return nil
		case <-conn.Done():
			return conn.Err()
		}
	},
}

func init() {
	listenCmd.Flags().StringSlice("send", nil, WrapString("Command to send after connecting, as Method or Method=params-json, repeatable"))
	listenCmd.Flags().Duration("duration", 0, WrapString("Stop listening after this long, 0 waits for interrupt"))
}

// eventFilter matches a method against full names or domain names
func eventFilter(patterns []string) func(method string) bool {
	if len(patterns) == 0 {
		return func(string) bool { return true }
	}
	return func(method string) bool {
		for _, p := range patterns {
			if method == p || strings.HasPrefix(method, p+".") {
				return true
			}
		}
		return false
	}
}

// splitSend parses "Method" or "Method=params-json"
func splitSend(s string) (string, json.RawMessage, error) {
	method, raw, found := strings.Cut(s, "=")
	if !found {
		return method, nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return "", nil, fmt.Errorf("params for %s are not valid JSON: %s", method, raw)
	}
	return method, json.RawMessage(raw), nil
}
