package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/flowstore"
	"github.com/c360/semflow/mcp"
	"github.com/c360/semflow/message"
	"github.com/c360/semflow/pkg/events"
	"github.com/c360/semflow/rpc"
	"github.com/c360/semflow/testutil"
)

// Test node behaviors.

type injectBehavior struct{ n component.Node }

func (b *injectBehavior) InjectMessage(payload any) message.Msg {
	if payload == nil {
		payload = b.n.Config()["payload"]
	}
	topic, _ := b.n.Config()["topic"].(string)
	return message.New(payload, topic)
}

func (b *injectBehavior) OnInput(_ context.Context, msg message.Msg) error {
	b.n.Send(msg)
	return nil
}

type debugBehavior struct{ n component.Node }

func (b *debugBehavior) OnInput(_ context.Context, msg message.Msg) error {
	b.n.Debug(component.DebugOutput{
		Property: "payload",
		Value:    message.CloneValue(msg.Payload()),
		Topic:    msg.Topic(),
		MsgID:    msg.ID(),
	})
	b.n.Log("seen " + msg.Topic())
	return nil
}

type outBehavior struct{ n component.Node }

func (b *outBehavior) OnInput(_ context.Context, msg message.Msg) error {
	events.Publish(b.n.Shared(), component.OutboundMessage{NodeID: b.n.ID(), Msg: message.Clone(msg)})
	return nil
}

type inBehavior struct {
	n     component.Node
	unsub func()
}

func (b *inBehavior) Init(context.Context) error {
	b.unsub = events.Subscribe(b.n.Shared(), func(ev component.ExternalMessage) {
		b.n.Post(func() { b.n.Send(message.New(ev.Payload, ev.Topic)) })
	})
	return nil
}

func (b *inBehavior) Close(context.Context) error {
	b.unsub()
	return nil
}

func registerTestTypes(t *testing.T, reg *component.Registry) *testutil.MockSet {
	t.Helper()
	types := []component.Registration{
		{Type: "test-inject", Category: component.CategoryInput, Outputs: 1,
			Factory: func(n component.Node) (component.Behavior, error) { return &injectBehavior{n: n}, nil }},
		{Type: "test-debug", Category: component.CategoryOutput, Inputs: 1,
			Factory: func(n component.Node) (component.Behavior, error) { return &debugBehavior{n: n}, nil }},
		{Type: "test-out", Category: component.CategoryOutput, Inputs: 1,
			Factory: func(n component.Node) (component.Behavior, error) { return &outBehavior{n: n}, nil }},
		{Type: "test-in", Category: component.CategoryInput, Outputs: 1,
			Factory: func(n component.Node) (component.Behavior, error) { return &inBehavior{n: n}, nil }},
	}
	for _, r := range types {
		require.NoError(t, reg.Register(r))
	}

	testutil.MockType(t, reg, "test-fail", func(b *testutil.MockBehavior) {
		b.InputFunc = func(context.Context, component.Node, message.Msg) error {
			return errors.New("boom")
		}
	})
	return testutil.MockType(t, reg, "test-sink", nil)
}

// recorder is the editor side of a peer connection.
type recorder struct {
	mu       sync.Mutex
	notes    []note
	handlers map[string]rpc.HandlerFunc
}

type note struct {
	Method string
	Params json.RawMessage
}

func (r *recorder) Handle(ctx context.Context, req *rpc.Request) (any, error) {
	if req.Notification {
		r.mu.Lock()
		r.notes = append(r.notes, note{Method: req.Method, Params: req.Params})
		r.mu.Unlock()
		return nil, nil
	}
	r.mu.Lock()
	h := r.handlers[req.Method]
	r.mu.Unlock()
	if h == nil {
		return nil, rpc.ErrMethodNotFound(req.Method)
	}
	return h(ctx, req)
}

func (r *recorder) handle(method string, fn rpc.HandlerFunc) {
	r.mu.Lock()
	r.handlers[method] = fn
	r.mu.Unlock()
}

func (r *recorder) byMethod(method string) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []json.RawMessage
	for _, n := range r.notes {
		if n.Method == method {
			out = append(out, n.Params)
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, method string, n int) []json.RawMessage {
	t.Helper()
	var got []json.RawMessage
	require.Eventually(t, func() bool {
		got = r.byMethod(method)
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %q notifications", n, method)
	return got
}

// remoteBridge accepts registration and exposes the bridge's connections.
type remoteBridge struct {
	mu    sync.Mutex
	conns []*rpc.Conn
}

func (rb *remoteBridge) Dial(context.Context, string, http.Header) (rpc.Transport, error) {
	local, remote := rpc.Pipe()
	mux := rpc.NewMux()
	mux.RegisterFunc(mcp.MethodRegisterDevice, func(context.Context, *rpc.Request) (any, error) {
		return map[string]bool{"ok": true}, nil
	})
	conn := rpc.NewConn(remote, mux)
	go func() { _ = conn.Serve(context.Background()) }()

	rb.mu.Lock()
	rb.conns = append(rb.conns, conn)
	rb.mu.Unlock()
	return local, nil
}

func (rb *remoteBridge) last() *rpc.Conn {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.conns) == 0 {
		return nil
	}
	return rb.conns[len(rb.conns)-1]
}

type harness struct {
	fs     *FlowService
	reg    *component.Registry
	store  *flowstore.MemoryStore
	bridge *remoteBridge
	sinks  *testutil.MockSet
}

func newHarness(t *testing.T, cfg Config, seed func(store *flowstore.MemoryStore)) *harness {
	t.Helper()

	h := &harness{
		reg:    component.NewRegistry(),
		store:  flowstore.NewMemoryStore(),
		bridge: &remoteBridge{},
	}
	h.sinks = registerTestTypes(t, h.reg)
	if seed != nil {
		seed(h.store)
	}

	fs, err := NewFlowService(cfg, h.reg, h.store, WithDialer(h.bridge))
	require.NoError(t, err)
	h.fs = fs

	require.NoError(t, fs.Start(testCtx(t)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = fs.Stop(ctx)
	})
	return h
}

// editor attaches a new editor peer.
func (h *harness) editor(t *testing.T) (*rpc.Conn, *recorder) {
	t.Helper()
	rec := &recorder{handlers: map[string]rpc.HandlerFunc{}}
	local, remote := rpc.Pipe()
	conn := rpc.NewConn(remote, rec)
	go func() { _ = conn.Serve(context.Background()) }()
	t.Cleanup(func() { _ = conn.Close() })

	h.fs.Hub().Attach(local)
	rec.waitFor(t, "ready", 1)
	return conn, rec
}

// connectBridge connects the automation bridge and returns its remote end.
func (h *harness) connectBridge(t *testing.T) *rpc.Conn {
	t.Helper()
	st, err := h.fs.Bridge().Connect(testCtx(t), mcp.Options{URL: "ws://bridge.test/ws"})
	require.NoError(t, err)
	require.Equal(t, mcp.StateConnected, st.Status)
	return h.bridge.last()
}

func (h *harness) deploy(t *testing.T, defs ...component.NodeDef) {
	t.Helper()
	_, err := h.fs.handleDeploy(testCtx(t), &rpc.Request{Params: mustJSON(t, map[string]any{"nodes": defs})})
	require.NoError(t, err)
}

func (h *harness) idle(t *testing.T) {
	t.Helper()
	require.NoError(t, h.fs.Runtime().WaitIdle(testCtx(t)))
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
