package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"devtools-rpc/domains/runtime"
	"devtools-rpc/domains/target"
	"devtools-rpc/middleware"
	"devtools-rpc/registry"
	"devtools-rpc/server"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Run a loopback debugging peer",
	Long:  WrapString(`Serves a small in-memory Target and Runtime implementation on --listen, for trying the client without a browser. Target.createTarget announces Target.targetCreated and Runtime.evaluate echoes its expression as a string and logs it through Runtime.consoleAPICalled. With --publish the address is stored in etcd until shutdown.`),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		u, err := url.Parse(viper.GetString("listen"))
		if err != nil {
			return err
		}

		svr := server.NewServer(server.WithLogger(logger), server.WithFrameSize(viper.GetInt("frame-size")))
		svr.Use(middleware.LoggingMiddleware(logger))
		if err := svr.Register(target.Domain.Name, newTargets(svr)); err != nil {
			return err
		}
		if err := svr.Register(runtime.Domain.Name, newEvaluator(svr)); err != nil {
			return err
		}

		network, address := "tcp", u.Host
		switch u.Scheme {
		case "ws", "tcp":
		case "unix":
			network, address = "unix", u.Path
		default:
			return fmt.Errorf("unsupported listen scheme %q", u.Scheme)
		}

		l, err := net.Listen(network, address)
		if err != nil {
			return err
		}

		var addr string
		serveErr := make(chan error, 1)
		switch u.Scheme {
		case "ws":
			addr = "ws://" + l.Addr().String() + "/devtools/browser"
			go func() { serveErr <- svr.ServeWebSocket(l) }()
		case "tcp":
			addr = "tcp://" + l.Addr().String()
			go func() { serveErr <- svr.ServeListener(l) }()
		default:
			addr = "unix://" + address
			go func() { serveErr <- svr.ServeListener(l) }()
		}
		logger.Info("peer listening", zap.String("addr", addr))
		fmt.Println(addr)

		if name := viper.GetString("publish"); name != "" {
			reg, err := newEtcdRegistry(logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			ep := registry.Endpoint{Addr: addr, Browser: "devtools-peer/" + Version, ProtocolVersion: "1.3"}
			if err := svr.Publish(cmd.Context(), reg, name, ep, viper.GetInt64("ttl")); err != nil {
				return err
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				return err
			}
		}
		return svr.Shutdown(5 * time.Second)
	},
}

func init() {
	peerCmd.Flags().String("listen", "ws://127.0.0.1:9222", WrapString("Listen address: ws://host:port, tcp://host:port or unix:///path"))
	peerCmd.Flags().String("publish", "", WrapString("Publish the listen address in etcd under this name"))
	peerCmd.Flags().Int64("ttl", 10, WrapString("Lease TTL in seconds for --publish"))
}

// targets is the loopback Target domain
type targets struct {
	svr *server.Server

	mu   sync.Mutex
	seq  int
	byID map[target.ID]target.Info
}

func newTargets(svr *server.Server) *targets {
	return &targets{svr: svr, byID: make(map[target.ID]target.Info)}
}

func (t *targets) CreateTarget(args *target.CreateTargetParams, reply *target.CreateTargetResult) error {
	t.mu.Lock()
	t.seq++
	info := target.Info{
		TargetID: target.ID("T" + strconv.Itoa(t.seq)),
		Type:     "page",
		URL:      args.URL,
	}
	t.byID[info.TargetID] = info
	t.mu.Unlock()

	reply.TargetID = info.TargetID
	return t.svr.Emit(context.Background(), target.TargetCreated.Method(), target.TargetCreatedEvent{TargetInfo: info})
}

func (t *targets) CloseTarget(args *target.CloseTargetParams, reply *target.CloseTargetResult) error {
	t.mu.Lock()
	_, ok := t.byID[args.TargetID]
	delete(t.byID, args.TargetID)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("no target with id %q", args.TargetID)
	}
	reply.Success = true
	return t.svr.Emit(context.Background(), target.TargetDestroyed.Method(), target.TargetDestroyedEvent{TargetID: args.TargetID})
}

func (t *targets) GetTargets(args *target.GetTargetsParams, reply *target.GetTargetsResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	reply.TargetInfos = make([]target.Info, 0, len(t.byID))
	for _, info := range t.byID {
		reply.TargetInfos = append(reply.TargetInfos, info)
	}
	return nil
}

func (t *targets) SetDiscoverTargets(args *target.SetDiscoverTargetsParams, reply *target.SetDiscoverTargetsResult) error {
	return nil
}

// evaluator is the loopback Runtime domain
type evaluator struct {
	svr *server.Server
}

func newEvaluator(svr *server.Server) *evaluator {
	return &evaluator{svr: svr}
}

func (e *evaluator) Enable(args *runtime.EnableParams, reply *runtime.EnableResult) error {
	return nil
}

func (e *evaluator) Evaluate(args *runtime.EvaluateParams, reply *runtime.EvaluateResult) error {
	reply.Result = runtime.RemoteObject{Type: "string", Value: args.Expression}

	ev := runtime.ConsoleAPICalledEvent{
		Type:               runtime.ConsoleLog,
		Args:               []runtime.RemoteObject{reply.Result},
		ExecutionContextID: args.ContextID,
		Timestamp:          float64(time.Now().UnixMilli()),
	}
	return e.svr.Emit(context.Background(), runtime.ConsoleAPICalled.Method(), ev)
}
