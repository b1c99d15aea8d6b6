package service

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
	flowengine "github.com/c360/semflow/engine"
	"github.com/c360/semflow/flowstore"
	"github.com/c360/semflow/health"
	"github.com/c360/semflow/mcp"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/peer"
	"github.com/c360/semflow/pkg/buffer"
	"github.com/c360/semflow/pkg/events"
)

// Default ring buffer capacities.
const (
	DefaultDebugBufferSize  = 100
	DefaultErrorBufferSize  = 100
	DefaultLogBufferSize    = 1000
	DefaultMessageQueueSize = 100
)

// Config holds FlowService settings.
type Config struct {
	Name    string
	Version string

	DebugBufferSize  int
	ErrorBufferSize  int
	LogBufferSize    int
	MessageQueueSize int
	PeerOutboxSize   int

	// DeployOnStart deploys the saved flows document when Start runs.
	DeployOnStart bool

	// MCP, when URL is set, connects the automation bridge on Start.
	MCP mcp.Options
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "semflow"
	}
	if c.DebugBufferSize <= 0 {
		c.DebugBufferSize = DefaultDebugBufferSize
	}
	if c.ErrorBufferSize <= 0 {
		c.ErrorBufferSize = DefaultErrorBufferSize
	}
	if c.LogBufferSize <= 0 {
		c.LogBufferSize = DefaultLogBufferSize
	}
	if c.MessageQueueSize <= 0 {
		c.MessageQueueSize = DefaultMessageQueueSize
	}
}

// Option configures a FlowService.
type Option func(*FlowService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(fs *FlowService) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics for the runtime, peers, bridge and
// buffers.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(fs *FlowService) { fs.metricsRegistry = registry }
}

// WithDialer replaces the bridge dialer.
func WithDialer(d mcp.Dialer) Option {
	return func(fs *FlowService) { fs.dialer = d }
}

// WithHealth reports component health into monitor.
func WithHealth(monitor *health.Monitor) Option {
	return func(fs *FlowService) { fs.health = monitor }
}

// queuedMessage is one message waiting for the bridge.
type queuedMessage struct {
	NodeID    string    `json:"nodeId"`
	Payload   any       `json:"payload"`
	Topic     string    `json:"topic,omitempty"`
	MsgID     string    `json:"_msgid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FlowService runs flows and serves editors and the automation bridge.
type FlowService struct {
	cfg             Config
	registry        *component.Registry
	store           flowstore.Store
	logger          *slog.Logger
	metricsRegistry *metric.MetricsRegistry
	metrics         *metric.Metrics
	dialer          mcp.Dialer
	health          *health.Monitor

	runtime *flowengine.Runtime
	hub     *peer.Hub
	bridge  *mcp.Bridge

	debug    buffer.Buffer[flowengine.DebugEvent]
	errs     buffer.Buffer[flowengine.ErrorEvent]
	logs     buffer.Buffer[component.LogEntry]
	messages buffer.Buffer[queuedMessage]

	statusMu sync.RWMutex
	statuses map[string]component.Status

	running     atomic.Bool
	cancel      context.CancelFunc
	runDone     chan struct{}
	unsubscribe func()
}

// NewFlowService wires a runtime over registry with store as its storage
// collaborator. Call Start to begin processing.
func NewFlowService(cfg Config, registry *component.Registry, store flowstore.Store, opts ...Option) (*FlowService, error) {
	if registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FlowService", "New", "registry is required")
	}
	if store == nil {
		store = flowstore.NewMemoryStore()
	}
	cfg.applyDefaults()

	fs := &FlowService{
		cfg:      cfg,
		registry: registry,
		store:    store,
		logger:   slog.Default(),
		statuses: make(map[string]component.Status),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.logger = fs.logger.With("service", cfg.Name)
	if fs.metricsRegistry != nil {
		fs.metrics = fs.metricsRegistry.CoreMetrics()
	}

	if err := fs.initBuffers(); err != nil {
		return nil, err
	}

	fs.runtime = flowengine.New(registry,
		flowengine.WithLogger(fs.logger.With("component", "runtime")),
		flowengine.WithObserver(fs),
		flowengine.WithMetrics(fs.metricsRegistry),
	)

	fs.hub = peer.NewHub(fs.instrument("editor", fs.editorMux()),
		peer.WithLogger(fs.logger.With("component", "peers")),
		peer.WithMetrics(fs.metrics),
		peer.WithOutboxSize(cfg.PeerOutboxSize),
		peer.WithReady(fs.readyParams),
	)

	bridgeOpts := []mcp.Option{
		mcp.WithLogger(fs.logger.With("component", "bridge")),
		mcp.WithMetrics(fs.metrics),
		mcp.WithIdentity("", cfg.Name, cfg.Version),
		mcp.WithNodeTypes(fs.nodeTypes),
		mcp.WithStatusHandler(fs.onBridgeStatus),
	}
	if fs.dialer != nil {
		bridgeOpts = append(bridgeOpts, mcp.WithDialer(fs.dialer))
	}
	fs.bridge = mcp.NewBridge(fs.instrument("bridge", fs.bridgeMux()), bridgeOpts...)

	if fs.health != nil {
		fs.registerHealth()
	}
	return fs, nil
}

func (fs *FlowService) initBuffers() error {
	var err error
	if fs.debug, err = buffer.NewCircularBuffer[flowengine.DebugEvent](fs.cfg.DebugBufferSize,
		buffer.WithMetrics[flowengine.DebugEvent](fs.metricsRegistry, "debug")); err != nil {
		return errors.Wrap(err, "FlowService", "New", "create debug buffer")
	}
	if fs.errs, err = buffer.NewCircularBuffer[flowengine.ErrorEvent](fs.cfg.ErrorBufferSize,
		buffer.WithMetrics[flowengine.ErrorEvent](fs.metricsRegistry, "errors")); err != nil {
		return errors.Wrap(err, "FlowService", "New", "create error buffer")
	}
	if fs.logs, err = buffer.NewCircularBuffer[component.LogEntry](fs.cfg.LogBufferSize,
		buffer.WithMetrics[component.LogEntry](fs.metricsRegistry, "logs")); err != nil {
		return errors.Wrap(err, "FlowService", "New", "create log buffer")
	}
	if fs.messages, err = buffer.NewCircularBuffer[queuedMessage](fs.cfg.MessageQueueSize,
		buffer.WithMetrics[queuedMessage](fs.metricsRegistry, "messages"),
		buffer.WithDropCallback(func(m queuedMessage) {
			fs.logger.Debug("Outbound message queue full, dropping oldest", "node_id", m.NodeID)
		})); err != nil {
		return errors.Wrap(err, "FlowService", "New", "create message queue")
	}
	return nil
}

// Start runs the runtime loop, optionally deploys the saved flows and
// connects the bridge.
func (fs *FlowService) Start(ctx context.Context) error {
	if !fs.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "FlowService", "Start", "start service")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	fs.cancel = cancel
	fs.runDone = make(chan struct{})
	go func() {
		defer close(fs.runDone)
		if err := fs.runtime.Run(runCtx); err != nil {
			fs.logger.Error("Runtime loop exited", "error", err)
		}
	}()

	fs.unsubscribe = events.Subscribe(fs.runtime.Shared(), fs.enqueueOutbound)

	if fs.cfg.DeployOnStart {
		if _, err := fs.deploySaved(ctx); err != nil {
			fs.logger.Error("Failed to deploy saved flows", "error", err)
		}
	}

	if fs.cfg.MCP.URL != "" {
		st, err := fs.bridge.Connect(ctx, fs.cfg.MCP)
		if err != nil {
			fs.logger.Error("Invalid bridge configuration", "error", err)
		} else {
			fs.logger.Info("Automation bridge started", "status", st.Status, "url", st.URL)
		}
	}

	fs.logger.Info("Flow service started", "node_types", len(fs.registry.Catalog()))
	return nil
}

// Stop disconnects the bridge and editors, then closes every node.
func (fs *FlowService) Stop(ctx context.Context) error {
	if !fs.running.CompareAndSwap(true, false) {
		return nil
	}

	var errs []error
	if err := fs.bridge.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := fs.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if fs.unsubscribe != nil {
		fs.unsubscribe()
	}

	fs.cancel()
	select {
	case <-fs.runDone:
	case <-ctx.Done():
		errs = append(errs, errors.WrapTransient(ctx.Err(), "FlowService", "Stop", "wait for runtime"))
	}

	fs.logger.Info("Flow service stopped")
	return errors.Join(errs...)
}

// Handler returns the HTTP routes: the editor websocket at /comms and
// health at /healthz when a monitor is configured.
func (fs *FlowService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/comms", fs.hub)
	if fs.health != nil {
		mux.Handle("/healthz", fs.health.Handler(fs.cfg.Name))
	}
	return mux
}

// Runtime returns the flow runtime.
func (fs *FlowService) Runtime() *flowengine.Runtime { return fs.runtime }

// Hub returns the editor peer hub.
func (fs *FlowService) Hub() *peer.Hub { return fs.hub }

// Bridge returns the automation bridge client.
func (fs *FlowService) Bridge() *mcp.Bridge { return fs.bridge }

// deploySaved deploys the stored flows document.
func (fs *FlowService) deploySaved(ctx context.Context) (flowengine.DeployResult, error) {
	raw, err := fs.store.GetFlows(ctx)
	if err != nil {
		return flowengine.DeployResult{}, err
	}
	defs, err := flowstore.DecodeFlows(raw)
	if err != nil {
		return flowengine.DeployResult{}, err
	}
	nodes, configs := flowstore.Split(defs)
	return fs.runtime.Deploy(ctx, flowengine.DeployRequest{Nodes: nodes, ConfigNodes: configs})
}

func (fs *FlowService) nodeTypes() []string {
	catalog := fs.registry.Catalog()
	out := make([]string, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, info.Type)
	}
	return out
}

func (fs *FlowService) readyParams() any {
	return map[string]any{
		"name":      fs.cfg.Name,
		"version":   fs.cfg.Version,
		"nodeTypes": fs.nodeTypes(),
		"mcp":       fs.bridge.Status(),
	}
}

func (fs *FlowService) onBridgeStatus(st mcp.Status) {
	if st.Status == mcp.StateError {
		fs.logger.Warn("Automation bridge error", "url", st.URL, "error", st.Error)
	} else {
		fs.logger.Info("Automation bridge status", "status", st.Status, "url", st.URL)
	}
	fs.hub.Notify("mcpStatus", st)
}

func (fs *FlowService) registerHealth() {
	fs.health.Register("runtime", func() health.Status {
		if !fs.running.Load() {
			return health.NewUnhealthy("runtime", "not running")
		}
		return health.NewHealthy("runtime", "running")
	})
	fs.health.Register("peers", func() health.Status {
		return health.NewHealthy("peers", strconv.Itoa(fs.hub.Count())+" connected")
	})
	fs.health.Register("bridge", func() health.Status {
		st := fs.bridge.Status()
		switch st.Status {
		case mcp.StateConnected, mcp.StateDisconnected:
			return health.NewHealthy("bridge", string(st.Status))
		case mcp.StateError:
			return health.NewDegraded("bridge", "error")
		default:
			return health.NewDegraded("bridge", string(st.Status))
		}
	})
}
