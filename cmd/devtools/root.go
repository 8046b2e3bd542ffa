package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"devtools-rpc/client"
	"devtools-rpc/domains"
	"devtools-rpc/middleware"
	"devtools-rpc/registry"
)

const (
	Version = "0.3.0"

	// Wrap is the number of characters to wrap the help text at
	Wrap int = 50
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "devtools",
		Short: "debugging protocol client",
		Long: fmt.Sprintf(`devtools (v%s)

Sends commands to a remote debugging endpoint and follows the events it
pushes. Every flag can also be set as DEVTOOLS_<FLAG> in the environment or
in a .env / .env.local file.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind command flags to viper
			return viper.BindPFlags(cmd.Flags())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("devtools v%s\n", Version)
		},
	}

	// metricSet collects the counters of every connection the CLI opens.
	metricSet = metrics.NewSet()
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(callCmd)
	RootCmd.AddCommand(listenCmd)
	RootCmd.AddCommand(domainsCmd)
	RootCmd.AddCommand(endpointCmd)
	RootCmd.AddCommand(peerCmd)
	RootCmd.AddCommand(versionCmd)

	flags := RootCmd.PersistentFlags()

	key := "endpoint"
	flags.String(key, "http://127.0.0.1:9222", WrapString("Debugging endpoint: ws:// or wss:// WebSocket URL, tcp:// or unix:// framed stream, or an http:// address whose /json/version names the WebSocket URL"))
	key = "name"
	flags.String(key, "", WrapString("Resolve the endpoint by this name in etcd instead of using --endpoint"))
	key = "etcd-endpoints"
	flags.String(key, "", WrapString("Comma-separated etcd endpoints used by --name and the endpoint commands"))
	key = "timeout"
	flags.Int(key, 10, WrapString("Timeout in seconds for dialing and for each command"))
	key = "dial-retries"
	flags.Int(key, 3, WrapString("How many times to try dialing the endpoint"))
	key = "buffer-size"
	flags.Int(key, 4096, WrapString("Receive buffer size in bytes"))
	key = "keep-alive"
	flags.Int(key, 0, WrapString("Ping interval in seconds on WebSocket endpoints, 0 disables"))
	key = "frame-size"
	flags.Int(key, 0, WrapString("Max bytes per outbound frame on stream endpoints, 0 sends whole messages"))
	key = "rate"
	flags.Float64(key, 0, WrapString("Max commands per second, 0 is unlimited"))
	key = "strict"
	flags.Bool(key, false, WrapString("Refuse commands that are not in the built-in catalog"))
	key = "log-level"
	flags.String(key, "warn", WrapString("Log level (debug, info, warn, error)"))
	key = "metrics"
	flags.Bool(key, false, WrapString("Print connection metrics in Prometheus format to stderr on exit"))
}

// initConfig loads env files and environment variables
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("devtools")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var lines []string
	var line strings.Builder
	width := 0

	for _, word := range strings.Fields(text) {
		if width > 0 && width+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += len(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func commandTimeout() time.Duration {
	return time.Duration(viper.GetInt("timeout")) * time.Second
}

// clientOptions builds the connection options from the flags
func clientOptions(logger *zap.Logger, extra ...client.Option) []client.Option {
	timeout := commandTimeout()

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithCatalog(domains.Catalog),
		client.WithMetrics(metricSet),
		client.WithBufferSize(viper.GetInt("buffer-size")),
		client.WithDialRetry(viper.GetInt("dial-retries"), timeout),
		client.WithKeepAlive(time.Duration(viper.GetInt("keep-alive")) * time.Second),
		client.WithFrameSize(viper.GetInt("frame-size")),
		client.WithMiddleware(middleware.LoggingMiddleware(logger)),
	}
	if r := viper.GetFloat64("rate"); r > 0 {
		opts = append(opts, client.WithMiddleware(middleware.RateLimitMiddleware(r, 1)))
	}
	if timeout > 0 {
		opts = append(opts, client.WithMiddleware(middleware.TimeOutMiddleware(timeout)))
	}
	if viper.GetBool("strict") {
		opts = append(opts, client.WithStrictMethods())
	}
	return append(opts, extra...)
}

// newEtcdRegistry connects to --etcd-endpoints
func newEtcdRegistry(logger *zap.Logger) (*registry.EtcdRegistry, error) {
	endpoints := viper.GetString("etcd-endpoints")
	if endpoints == "" {
		return nil, fmt.Errorf("--etcd-endpoints is required")
	}
	return registry.NewEtcdRegistry(strings.Split(endpoints, ","), logger)
}

// resolveEndpoint turns --name / --endpoint into a dialable address
func resolveEndpoint(ctx context.Context, logger *zap.Logger) (string, error) {
	if name := viper.GetString("name"); name != "" {
		reg, err := newEtcdRegistry(logger)
		if err != nil {
			return "", err
		}
		defer reg.Close()

		ep, err := reg.Resolve(ctx, name)
		if err != nil {
			return "", err
		}
		return ep.Addr, nil
	}

	addr := viper.GetString("endpoint")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		ep, err := registry.VersionEndpoint(ctx, addr)
		if err != nil {
			return "", err
		}
		return ep.Addr, nil
	}
	return addr, nil
}

// connect opens a connection as configured by the flags
func connect(ctx context.Context, logger *zap.Logger, extra ...client.Option) (*client.Conn, error) {
	dialCtx := ctx
	if timeout := commandTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout*time.Duration(max(1, viper.GetInt("dial-retries"))))
		defer cancel()
	}

	addr, err := resolveEndpoint(dialCtx, logger)
	if err != nil {
		return nil, err
	}
	return client.Dial(dialCtx, addr, clientOptions(logger, extra...)...)
}

// writeMetrics prints the collected metrics when --metrics is set
func writeMetrics() {
	if viper.GetBool("metrics") {
		metricSet.WritePrometheus(os.Stderr)
	}
}
