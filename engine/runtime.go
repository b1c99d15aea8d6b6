package flowengine

import (
	"context"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/pkg/events"
)

const shutdownTimeout = 5 * time.Second

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets the sink for node logs, statuses, errors and debug output.
func WithObserver(o Observer) Option {
	return func(r *Runtime) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Runtime) {
		r.metricsRegistry = registry
	}
}

// Runtime owns one live deployment: its node instances, the task loop that
// executes them, and the context stores they share.
//
// All node hooks, deliveries and deploy phases run as tasks on the loop
// started by Run, one at a time. Public methods are safe for concurrent use
// and block until the loop has executed their work.
type Runtime struct {
	registry        *component.Registry
	logger          *slog.Logger
	observer        Observer
	metricsRegistry *metric.MetricsRegistry
	metrics         *engineMetrics

	queue  *taskQueue
	shared *events.Bus
	stores *contextStores

	// Written on the loop only; the lock lets other goroutines resolve nodes.
	mu          sync.RWMutex
	nodes       map[string]*Node
	configNodes map[string]*Node

	// Loop-owned.
	order      []string
	configDefs map[string]component.NodeDef
	skip       map[string]bool
	catchers   []catcher

	deployMu sync.Mutex
	running  atomic.Bool
	done     chan struct{}
}

// New creates a runtime resolving node types from registry. Call Run to start
// its loop.
func New(registry *component.Registry, opts ...Option) *Runtime {
	r := &Runtime{
		registry:    registry,
		logger:      slog.Default(),
		observer:    NopObserver{},
		queue:       newTaskQueue(),
		shared:      events.New(),
		stores:      newContextStores(),
		nodes:       make(map[string]*Node),
		configNodes: make(map[string]*Node),
		configDefs:  make(map[string]component.NodeDef),
		skip:        make(map[string]bool),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	metrics, err := newEngineMetrics(r.metricsRegistry)
	if err != nil {
		r.logger.Error("Failed to initialize runtime metrics", "error", err)
		metrics = nil // Continue without metrics
	}
	r.metrics = metrics

	return r
}

// Run drains the task queue until ctx is cancelled, then closes every node.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Runtime", "Run", "start loop")
	}
	defer close(r.done)

	r.logger.Debug("Runtime loop started")
	for {
		if ctx.Err() != nil {
			r.shutdown()
			return nil
		}

		if t, ok := r.queue.tryDequeue(); ok {
			r.exec(t)
			r.metrics.setQueueDepth(r.queue.len())
			continue
		}

		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case _, ok := <-r.queue.wait():
			if !ok {
				return nil
			}
		}
	}
}

func (r *Runtime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	r.closeAll(ctx)
	if dropped := r.queue.close(); dropped > 0 {
		r.logger.Warn("Runtime stopped with pending tasks", "dropped", dropped)
	}
	r.logger.Debug("Runtime loop stopped")
}

func (r *Runtime) exec(t task) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("Runtime task panicked", "panic", v, "stack", string(debug.Stack()))
		}
	}()
	t()
}

// enqueue schedules t on the loop. Tasks submitted after shutdown are dropped.
func (r *Runtime) enqueue(t task) {
	r.queue.enqueue(t)
}

// call runs fn on the loop and waits for it to finish.
func (r *Runtime) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !r.queue.enqueue(func() {
		defer close(finished)
		fn()
	}) {
		return errors.ErrRuntimeStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		select {
		case <-finished:
			return nil
		default:
			return errors.ErrRuntimeStopped
		}
	}
}

// WaitIdle blocks until the task queue is empty. Work running on goroutines
// started with Node.Go is not tracked.
func (r *Runtime) WaitIdle(ctx context.Context) error {
	for {
		depth := 0
		if err := r.call(ctx, func() { depth = r.queue.len() }); err != nil {
			return err
		}
		if depth == 0 {
			return nil
		}
	}
}

// Shared returns the runtime-wide event bus.
func (r *Runtime) Shared() *events.Bus {
	return r.shared
}

// Registry returns the node type registry.
func (r *Runtime) Registry() *component.Registry {
	return r.registry
}

// GetNode returns a live ordinary node.
func (r *Runtime) GetNode(id string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// GetConfigNode returns a live config node.
func (r *Runtime) GetConfigNode(id string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.configNodes[id]
	return n, ok
}

// Nodes returns the live ordinary nodes sorted by id.
func (r *Runtime) Nodes() []*Node {
	r.mu.RLock()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Node) int { return compareIDs(a, b) })
	return out
}

// ConfigNodes returns the live config nodes sorted by id.
func (r *Runtime) ConfigNodes() []*Node {
	r.mu.RLock()
	out := make([]*Node, 0, len(r.configNodes))
	for _, n := range r.configNodes {
		out = append(out, n)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Node) int { return compareIDs(a, b) })
	return out
}

func compareIDs(a, b *Node) int {
	switch {
	case a.ID() < b.ID():
		return -1
	case a.ID() > b.ID():
		return 1
	}
	return 0
}

// lookup resolves any live node, config nodes first.
func (r *Runtime) lookup(id string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.configNodes[id]; ok && n.Alive() {
		return n, true
	}
	if n, ok := r.nodes[id]; ok && n.Alive() {
		return n, true
	}
	return nil, false
}

func (r *Runtime) register(n *Node) {
	r.mu.Lock()
	if n.kind == configNode {
		r.configNodes[n.ID()] = n
	} else {
		r.nodes[n.ID()] = n
	}
	r.mu.Unlock()
}

func (r *Runtime) unregister(n *Node) {
	r.mu.Lock()
	if n.kind == configNode {
		if r.configNodes[n.ID()] == n {
			delete(r.configNodes, n.ID())
		}
	} else if r.nodes[n.ID()] == n {
		delete(r.nodes, n.ID())
	}
	r.mu.Unlock()
}

// Inject builds a message with the node's Injector and hands it to the node.
// A nil payload selects the node's configured payload.
func (r *Runtime) Inject(ctx context.Context, nodeID string, payload any) error {
	var err error
	callErr := r.call(ctx, func() {
		n, ok := r.nodes[nodeID]
		if !ok || !n.Alive() {
			err = errors.WrapInvalid(errors.ErrNodeNotFound, "Runtime", "Inject", "lookup node "+nodeID)
			return
		}
		inj, ok := n.Behavior().(component.Injector)
		if !ok {
			err = errors.WrapInvalid(errors.ErrNotInjectable, "Runtime", "Inject", "node "+nodeID)
			return
		}
		msg := inj.InjectMessage(payload)
		if msg == nil {
			return
		}
		n.receive(msg)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Trigger delivers msg straight to a node's input.
func (r *Runtime) Trigger(ctx context.Context, nodeID string, msg map[string]any) error {
	var err error
	callErr := r.call(ctx, func() {
		n, ok := r.nodes[nodeID]
		if !ok || !n.Alive() {
			err = errors.WrapInvalid(errors.ErrNodeNotFound, "Runtime", "Trigger", "lookup node "+nodeID)
			return
		}
		if msg == nil {
			msg = map[string]any{}
		}
		n.receive(msg)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Stop closes every node and forgets the config snapshots, so the next
// deploy rebuilds everything.
func (r *Runtime) Stop(ctx context.Context) error {
	r.deployMu.Lock()
	defer r.deployMu.Unlock()

	return r.call(ctx, func() { r.closeAll(ctx) })
}

// closeAll runs on the loop.
func (r *Runtime) closeAll(ctx context.Context) {
	for _, id := range r.order {
		if n, ok := r.nodes[id]; ok {
			n.close(ctx)
		}
	}
	for _, n := range r.Nodes() {
		n.close(ctx)
	}
	for _, n := range r.ConfigNodes() {
		n.close(ctx)
	}

	r.mu.Lock()
	r.nodes = make(map[string]*Node)
	r.configNodes = make(map[string]*Node)
	r.mu.Unlock()

	r.order = nil
	r.catchers = nil
	r.configDefs = make(map[string]component.NodeDef)
	r.skip = make(map[string]bool)
	r.metrics.setLiveNodes(0, 0)
}
