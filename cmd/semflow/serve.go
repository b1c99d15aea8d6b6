package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/componentregistry"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/flowstore"
	"github.com/c360/semflow/health"
	"github.com/c360/semflow/mcp"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/natsclient"
	"github.com/c360/semflow/service"
)

const defaultShutdownTimeout = 30 * time.Second

type serveOptions struct {
	ShutdownTimeout time.Duration
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the flow runtime and its HTTP endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			logger := setupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)
			return serve(cmd.Context(), cfg, logger, opts.ShutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "graceful shutdown timeout")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	logger.Info("Starting semflow",
		"version", Version,
		"build_time", BuildTime,
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Mode)

	metricsRegistry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	store, closeStore, err := openStore(signalCtx, cfg, logger, metricsRegistry, monitor)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register node types: %w", err)
	}
	logger.Info("Node types registered", "count", len(registry.Catalog()))

	svc, err := service.NewFlowService(serviceConfig(cfg), registry, store,
		service.WithLogger(logger),
		service.WithMetrics(metricsRegistry),
		service.WithHealth(monitor),
	)
	if err != nil {
		return fmt.Errorf("create flow service: %w", err)
	}

	var metricsServer *metric.Server
	if cfg.Server.MetricsAddr != "" {
		metricsServer = metric.NewServer(cfg.Server.MetricsAddr, "/metrics", metricsRegistry)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("Metrics server listening", "addr", metricsServer.Address())
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := svc.Start(signalCtx); err != nil {
		return fmt.Errorf("start flow service: %w", err)
	}
	logger.Info("semflow started", "addr", cfg.Server.Addr)

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop flow service: %w", err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop http server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}

	logger.Info("semflow shutdown complete")
	return errors.Join(errs...)
}

func serviceConfig(cfg *config.Config) service.Config {
	return service.Config{
		Name:             cfg.Server.Name,
		Version:          Version,
		DebugBufferSize:  cfg.Buffers.Debug,
		ErrorBufferSize:  cfg.Buffers.Errors,
		LogBufferSize:    cfg.Buffers.Logs,
		MessageQueueSize: cfg.Buffers.Messages,
		PeerOutboxSize:   cfg.Buffers.PeerOutbox,
		DeployOnStart:    cfg.Server.DeployOnStart,
		MCP: mcp.Options{
			URL:              cfg.MCP.URL,
			Token:            cfg.MCP.Token,
			ReconnectDelayMs: int64(cfg.MCP.ReconnectDelay),
		},
	}
}

// openStore selects the storage collaborator. kv mode connects to NATS and
// keeps the connection until the returned close func runs.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	metricsRegistry *metric.MetricsRegistry,
	monitor *health.Monitor,
) (flowstore.Store, func(), error) {
	if cfg.Storage.Mode != config.StorageModeKV {
		return flowstore.NewMemoryStore(), func() {}, nil
	}

	client, err := natsClient(cfg, logger, metricsRegistry)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "url", cfg.NATS.URL())
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	monitor.Register("nats", natsProbe(client))
	closeClient := func() {
		monitor.Remove("nats")
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}

	store, err := flowstore.NewKVStore(ctx, client, flowstore.KVConfig{
		Bucket:  cfg.Storage.Bucket,
		History: cfg.Storage.History,
		Timeout: cfg.Storage.Timeout.Std(),
	})
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("open flow store: %w", err)
	}
	return store, closeClient, nil
}

// natsProbe counts a reconnecting client as degraded rather than down.
func natsProbe(client interface{ Status() natsclient.ConnectionStatus }) health.Probe {
	return func() health.Status {
		switch st := client.Status(); st {
		case natsclient.StatusConnected:
			return health.NewHealthy("nats", st.String())
		case natsclient.StatusReconnecting, natsclient.StatusConnecting:
			return health.NewDegraded("nats", st.String())
		default:
			return health.NewUnhealthy("nats", st.String())
		}
	}
}

func natsClient(cfg *config.Config, logger *slog.Logger, metricsRegistry *metric.MetricsRegistry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.Server.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithLogger(logger.With("component", "nats")),
		natsclient.WithMetrics(metricsRegistry),
	}
	if d := cfg.NATS.ReconnectWait.Std(); d > 0 {
		opts = append(opts, natsclient.WithReconnectWait(d))
	}
	if d := cfg.NATS.Timeout.Std(); d > 0 {
		opts = append(opts, natsclient.WithTimeout(d))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	return natsclient.NewClient(cfg.NATS.URL(), opts...)
}
