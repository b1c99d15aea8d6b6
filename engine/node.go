package flowengine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
	"github.com/c360/semflow/pkg/events"
)

// Node is a deployed instance. It implements component.Node for its
// behavior. Hooks run on the runtime loop; the component.Node methods may be
// called from any goroutine.
type Node struct {
	rt     *Runtime
	kind   nodeKind
	def    component.NodeDef
	reg    *component.Registration
	config map[string]any
	stores component.ContextSet
	bus    *events.Bus
	logger *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	alive    atomic.Bool
	hasError atomic.Bool

	mu       sync.Mutex
	name     string
	behavior component.Behavior
	closers  []component.CloseFunc
	pending  *sync.WaitGroup // non-nil while Init runs
	initWait *sync.WaitGroup
	asyncErr error
}

var _ component.Node = (*Node)(nil)

func newNode(rt *Runtime, kind nodeKind, def component.NodeDef, reg *component.Registration) *Node {
	cfg := make(map[string]any, len(reg.Defaults)+len(def.Config))
	for k, v := range reg.Defaults {
		cfg[k] = message.CloneValue(v)
	}
	for k, v := range def.Config {
		cfg[k] = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		rt:     rt,
		kind:   kind,
		def:    def,
		reg:    reg,
		config: cfg,
		stores: rt.stores.forNode(def.ID, def.Z),
		bus:    events.New(),
		logger: rt.logger.With("node_id", def.ID, "node_type", def.Type),
		ctx:    ctx,
		cancel: cancel,
		name:   def.Name,
	}
	n.alive.Store(true)
	return n
}

func (n *Node) ID() string             { return n.def.ID }
func (n *Node) Type() string           { return n.def.Type }
func (n *Node) FlowID() string         { return n.def.Z }
func (n *Node) Config() map[string]any { return n.config }
func (n *Node) Wires() [][]string      { return n.def.Wires }
func (n *Node) Logger() *slog.Logger   { return n.logger }
func (n *Node) Alive() bool            { return n.alive.Load() }

func (n *Node) Context() component.ContextSet { return n.stores }
func (n *Node) Events() *events.Bus           { return n.bus }
func (n *Node) Shared() *events.Bus           { return n.rt.shared }

// Name returns the display name, refreshed on redeploy.
func (n *Node) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// Registration returns the node type's registration.
func (n *Node) Registration() *component.Registration {
	return n.reg
}

// HasError reports whether the node's last failure is still showing.
func (n *Node) HasError() bool {
	return n.hasError.Load()
}

// Behavior returns the instance built by the node type's factory.
func (n *Node) Behavior() component.Behavior {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.behavior
}

func (n *Node) setBehavior(b component.Behavior) {
	n.mu.Lock()
	n.behavior = b
	n.mu.Unlock()
}

func (n *Node) setName(name string) {
	n.mu.Lock()
	n.name = name
	n.mu.Unlock()
}

func (n *Node) Lookup(id string) (component.Node, bool) {
	other, ok := n.rt.lookup(id)
	if !ok {
		return nil, false
	}
	return other, true
}

func (n *Node) Send(v any) {
	if !n.Alive() {
		return
	}
	n.rt.route(n, normalize(v))
}

func (n *Node) Log(text string) {
	n.emitLog(component.LogLevelInfo, text, "")
}

func (n *Node) Warn(text string) {
	n.emitLog(component.LogLevelWarn, text, "")
}

func (n *Node) emitLog(level component.LogLevel, text, stack string) {
	n.logger.Log(context.Background(), level.SlogLevel(), text)
	n.rt.observer.OnLog(component.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		NodeID:    n.ID(),
		NodeType:  n.Type(),
		NodeName:  n.Name(),
		FlowID:    n.FlowID(),
		Message:   text,
		Stack:     stack,
	})
}

func (n *Node) Error(text string, origin message.Msg, err error) {
	if !n.Alive() {
		n.logger.Debug("Dropped error from closed node", "error", text)
		return
	}
	if text == "" && err != nil {
		text = err.Error()
	}
	stack := errors.StackOf(err)

	n.hasError.Store(true)
	n.rt.metrics.recordNodeError(n.Type())
	n.emitLog(component.LogLevelError, text, stack)
	n.rt.observer.OnStatus(StatusEvent{
		NodeID: n.ID(),
		Status: component.Status{Fill: "red", Shape: "ring", Text: text},
	})
	n.rt.observer.OnError(ErrorEvent{
		NodeID:    n.ID(),
		NodeName:  n.Name(),
		NodeType:  n.Type(),
		Message:   text,
		Stack:     stack,
		MsgID:     origin.ID(),
		Timestamp: time.Now(),
	})

	// Catch nodes report their own failures but never catch them.
	if _, ok := n.Behavior().(component.CatchHandler); ok {
		return
	}

	rec := message.ErrorRecord(origin, message.ErrorInfo{
		Message: text,
		Source:  message.Source{ID: n.ID(), Type: n.Type(), Name: n.Name()},
		Stack:   stack,
	})
	n.rt.enqueue(func() { n.rt.routeError(rec) })
}

func (n *Node) Status(s component.Status) {
	if !n.Alive() {
		return
	}
	n.rt.observer.OnStatus(StatusEvent{NodeID: n.ID(), Status: s})
}

func (n *Node) Debug(ev component.DebugOutput) {
	if !n.Alive() {
		return
	}
	n.rt.observer.OnDebug(DebugEvent{
		NodeID:    n.ID(),
		NodeName:  n.Name(),
		Property:  ev.Property,
		Payload:   ev.Value,
		Topic:     ev.Topic,
		MsgID:     ev.MsgID,
		Timestamp: time.Now(),
	})
}

func (n *Node) Download(ev component.DownloadOutput) {
	if !n.Alive() {
		return
	}
	n.rt.observer.OnDownload(DownloadEvent{NodeID: n.ID(), DownloadOutput: ev})
}

func (n *Node) OnClose(fn component.CloseFunc) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	n.closers = append(n.closers, fn)
	n.mu.Unlock()
}

func (n *Node) Go(origin message.Msg, fn func(ctx context.Context) error) {
	if !n.Alive() {
		return
	}

	n.mu.Lock()
	pending := n.pending
	if pending != nil {
		pending.Add(1)
	}
	n.mu.Unlock()

	go func() {
		err := protect(func() error { return fn(n.ctx) })

		if pending != nil {
			if err != nil {
				n.mu.Lock()
				n.asyncErr = errors.Join(n.asyncErr, err)
				n.mu.Unlock()
			}
			pending.Done()
			return
		}

		// Late completions of a closed instance are dropped.
		if err != nil && n.Alive() && n.ctx.Err() == nil {
			n.Error("", origin, err)
		}
	}()
}

func (n *Node) Post(fn func()) {
	n.rt.enqueue(func() {
		if !n.Alive() {
			return
		}
		if err := protect(func() error { fn(); return nil }); err != nil {
			n.Error("", nil, err)
		}
	})
}

// receive runs on the loop.
func (n *Node) receive(msg message.Msg) {
	if !n.Alive() {
		return
	}
	if n.hasError.Swap(false) {
		n.rt.observer.OnStatus(StatusEvent{NodeID: n.ID()})
	}

	h, ok := n.Behavior().(component.InputHandler)
	if !ok {
		return
	}
	if err := protect(func() error { return h.OnInput(n.ctx, msg) }); err != nil {
		n.Error("", msg, err)
	}
}

// init runs the Init hook on the loop. Work the hook starts with Go is
// collected for awaitInit.
func (n *Node) init() error {
	n.mu.Lock()
	n.pending = &sync.WaitGroup{}
	n.mu.Unlock()

	var err error
	if h, ok := n.Behavior().(component.Initializer); ok {
		err = protect(func() error { return h.Init(n.ctx) })
	}

	n.mu.Lock()
	n.initWait = n.pending
	n.pending = nil
	n.mu.Unlock()
	return err
}

// awaitInit waits off-loop for asynchronous init work.
func (n *Node) awaitInit(ctx context.Context) error {
	n.mu.Lock()
	wg := n.initWait
	n.mu.Unlock()
	if wg == nil {
		return nil
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.initWait = nil
	return n.asyncErr
}

// start runs the Starter hook on the loop.
func (n *Node) start() {
	h, ok := n.Behavior().(component.Starter)
	if !ok || !n.Alive() {
		return
	}
	if err := protect(func() error { h.Start(n.ctx); return nil }); err != nil {
		n.Error("", nil, err)
	}
}

// close runs the Close hook, then every OnClose callback. Failures are
// logged and do not stop the remaining teardown.
func (n *Node) close(ctx context.Context) {
	if !n.alive.Swap(false) {
		return
	}

	if h, ok := n.Behavior().(component.Closer); ok {
		if err := protect(func() error { return h.Close(ctx) }); err != nil {
			n.emitLog(component.LogLevelError, fmt.Sprintf("close failed: %v", err), errors.StackOf(err))
		}
	}

	n.mu.Lock()
	closers := n.closers
	n.closers = nil
	n.mu.Unlock()

	for i, fn := range closers {
		if err := protect(func() error { return fn(ctx) }); err != nil {
			n.emitLog(component.LogLevelError,
				fmt.Sprintf("close callback %d failed: %v", i, err), errors.StackOf(err))
		}
	}

	n.cancel()
	n.bus.Reset()
}

// protect runs fn, converting a panic into a *errors.PanicError.
func protect(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.NewPanicError(v, debug.Stack())
		}
	}()
	return fn()
}
