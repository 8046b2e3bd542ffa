package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"devtools-rpc/registry"
)

var (
	endpointCmd = &cobra.Command{
		Use:   "endpoint",
		Short: "Publish, resolve and discover endpoint addresses",
	}

	endpointPublishCmd = &cobra.Command{
		Use:   "publish [name] [addr]",
		Short: "Store an endpoint address in etcd",
		Long:  WrapString(`Stores addr under name. With --ttl the entry is bound to a lease that is kept alive until the command is interrupted, then withdrawn.`),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, reg *registry.EtcdRegistry) error {
				ep := registry.Endpoint{
					Addr:            args[1],
					Browser:         viper.GetString("browser"),
					ProtocolVersion: viper.GetString("protocol-version"),
				}
				ttl := viper.GetInt64("ttl")
				if err := reg.Publish(ctx, args[0], ep, ttl); err != nil {
					return err
				}
				fmt.Printf("published %s -> %s\n", args[0], ep.Addr)
				if ttl <= 0 {
					return nil
				}

				// The lease dies with the process, so hold it until interrupted.
				waitForSignal(ctx)
				return reg.Withdraw(context.Background(), args[0])
			})
		},
	}

	endpointWithdrawCmd = &cobra.Command{
		Use:   "withdraw [name]",
		Short: "Remove an endpoint from etcd",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, reg *registry.EtcdRegistry) error {
				return reg.Withdraw(ctx, args[0])
			})
		},
	}

	endpointResolveCmd = &cobra.Command{
		Use:   "resolve [name]",
		Short: "Look an endpoint up in etcd",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, reg *registry.EtcdRegistry) error {
				ep, err := reg.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(ep)
			})
		},
	}

	endpointWatchCmd = &cobra.Command{
		Use:   "watch [name]",
		Short: "Print every change of an endpoint until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, reg *registry.EtcdRegistry) error {
				ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				for ep := range reg.Watch(ctx, args[0]) {
					if err := printJSON(ep); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	endpointVersionCmd = &cobra.Command{
		Use:   "version [http-addr]",
		Short: "Discover the WebSocket address behind an HTTP debugging port",
		Long:  WrapString(`Queries /json/version on the given HTTP address (default --endpoint) and prints the browser, protocol version and WebSocket debugger URL.`),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := viper.GetString("endpoint")
			if len(args) == 1 {
				addr = args[0]
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout())
			defer cancel()

			ep, err := registry.VersionEndpoint(ctx, addr)
			if err != nil {
				return err
			}
			return printJSON(ep)
		},
	}
)

func init() {
	endpointCmd.AddCommand(endpointPublishCmd)
	endpointCmd.AddCommand(endpointWithdrawCmd)
	endpointCmd.AddCommand(endpointResolveCmd)
	endpointCmd.AddCommand(endpointWatchCmd)
	endpointCmd.AddCommand(endpointVersionCmd)

	endpointPublishCmd.Flags().Int64("ttl", 0, WrapString("Lease TTL in seconds, 0 stores the entry without a lease"))
	endpointPublishCmd.Flags().String("browser", "", WrapString("Browser product string to store with the address"))
	endpointPublishCmd.Flags().String("protocol-version", "", WrapString("Protocol version to store with the address"))
}

// withRegistry connects to etcd, runs fn and closes the client
func withRegistry(fn func(ctx context.Context, reg *registry.EtcdRegistry) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg, err := newEtcdRegistry(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("failed to close etcd client", zap.Error(err))
		}
	}()

	return fn(context.Background(), reg)
}

func waitForSignal(ctx context.Context) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
