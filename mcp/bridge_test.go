package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/rpc"
)

// fakeBridge plays the remote automation bridge over in-memory pipes.
type fakeBridge struct {
	rejectDevice bool
	failDials    atomic.Int32
	dials        atomic.Int32

	mu      sync.Mutex
	calls   []string
	params  []json.RawMessage
	conns   []*rpc.Conn
	headers []http.Header
}

func (f *fakeBridge) Dial(_ context.Context, _ string, header http.Header) (rpc.Transport, error) {
	f.dials.Add(1)
	if f.failDials.Load() > 0 {
		f.failDials.Add(-1)
		return nil, stderrors.New("connection refused")
	}

	local, remote := rpc.Pipe()
	mux := rpc.NewMux()
	mux.RegisterFunc(MethodRegisterDevice, func(_ context.Context, req *rpc.Request) (any, error) {
		f.record(req)
		if f.rejectDevice {
			return nil, rpc.ErrMethodNotFound(req.Method)
		}
		return map[string]bool{"ok": true}, nil
	})
	mux.RegisterFunc(MethodRegisterClient, func(_ context.Context, req *rpc.Request) (any, error) {
		f.record(req)
		return map[string]bool{"ok": true}, nil
	})

	conn := rpc.NewConn(remote, mux)
	go func() { _ = conn.Serve(context.Background()) }()

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.headers = append(f.headers, header)
	f.mu.Unlock()
	return local, nil
}

func (f *fakeBridge) record(req *rpc.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Method)
	f.params = append(f.params, req.Params)
	f.mu.Unlock()
}

func (f *fakeBridge) recorded() ([]string, []json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]json.RawMessage(nil), f.params...)
}

func (f *fakeBridge) conn(i int) *rpc.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

type statusLog struct {
	mu  sync.Mutex
	all []Status
}

func (l *statusLog) add(s Status) {
	l.mu.Lock()
	l.all = append(l.all, s)
	l.mu.Unlock()
}

func (l *statusLog) snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.all...)
}

func newBridge(t *testing.T, f *fakeBridge, handler rpc.Handler, opts ...Option) (*Bridge, *statusLog) {
	t.Helper()
	log := &statusLog{}
	opts = append([]Option{
		WithDialer(f),
		WithStatusHandler(log.add),
		WithIdentity("dev-1", "semflow", "1.2.3"),
		WithNodeTypes(func() []string { return []string{"debug", "inject"} }),
	}, opts...)

	b := NewBridge(handler, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b, log
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnectRegistersDevice(t *testing.T) {
	f := &fakeBridge{}
	b, log := newBridge(t, f, nil)

	st, err := b.Connect(testCtx(t), Options{URL: "ws://bridge.local/ws", Token: "secret"})
	require.NoError(t, err)
	assert.Equal(t, StateConnected, st.Status)
	assert.Equal(t, "ws://bridge.local/ws", st.URL)
	assert.True(t, b.Connected())

	calls, params := f.recorded()
	require.Equal(t, []string{MethodRegisterDevice}, calls)

	var reg registerDevice
	require.NoError(t, json.Unmarshal(params[0], &reg))
	assert.Equal(t, "dev-1", reg.DeviceID)
	assert.Equal(t, "semflow", reg.Name)
	assert.Equal(t, "1.2.3", reg.Version)
	assert.Equal(t, []string{"debug", "inject"}, reg.NodeTypes)

	assert.Equal(t, "Bearer secret", f.headers[0].Get("Authorization"))

	states := log.snapshot()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, StateConnecting, states[0].Status)
	assert.Equal(t, StateConnected, states[len(states)-1].Status)
}

func TestRegisterClientFallback(t *testing.T) {
	f := &fakeBridge{rejectDevice: true}
	b, _ := newBridge(t, f, nil)

	st, err := b.Connect(testCtx(t), Options{URL: "ws://bridge.local"})
	require.NoError(t, err)
	assert.Equal(t, StateConnected, st.Status)

	calls, params := f.recorded()
	require.Equal(t, []string{MethodRegisterDevice, MethodRegisterClient}, calls)

	var reg registerClient
	require.NoError(t, json.Unmarshal(params[1], &reg))
	assert.Equal(t, "dev-1", reg.ClientID)
	assert.Equal(t, "semflow", reg.Name)
}

func TestReconnectAfterDrop(t *testing.T) {
	f := &fakeBridge{}
	b, _ := newBridge(t, f, nil)

	_, err := b.Connect(testCtx(t), Options{URL: "ws://bridge.local", ReconnectDelayMs: 10})
	require.NoError(t, err)

	require.NoError(t, f.conn(0).Close())

	require.Eventually(t, func() bool {
		return f.dials.Load() >= 2 && b.Connected()
	}, 3*time.Second, 5*time.Millisecond)
}

func TestReconnectAfterDialFailure(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	f := &fakeBridge{}
	f.failDials.Store(2)
	b, _ := newBridge(t, f, nil, WithMetrics(registry.Metrics))

	st, err := b.Connect(testCtx(t), Options{URL: "ws://bridge.local", ReconnectDelayMs: 100})
	require.NoError(t, err)
	assert.Equal(t, StateError, st.Status)
	assert.Contains(t, st.Error, "connection refused")

	require.Eventually(t, b.Connected, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), f.dials.Load())
	assert.Equal(t, float64(2), promtest.ToFloat64(registry.Metrics.BridgeDials.WithLabelValues("failure")))
	assert.Equal(t, float64(1), promtest.ToFloat64(registry.Metrics.BridgeDials.WithLabelValues("success")))
	assert.Equal(t, float64(1), promtest.ToFloat64(registry.Metrics.BridgeConnected))
}

func TestStaleSessionEventsIgnored(t *testing.T) {
	f := &fakeBridge{}
	b, log := newBridge(t, f, nil)

	_, err := b.Connect(testCtx(t), Options{URL: "ws://a.local", ReconnectDelayMs: 10})
	require.NoError(t, err)
	st, err := b.Connect(testCtx(t), Options{URL: "ws://b.local", ReconnectDelayMs: 10})
	require.NoError(t, err)
	require.Equal(t, StateConnected, st.Status)
	mark := len(log.snapshot())

	// The first session's socket closes after it has been replaced.
	_ = f.conn(0).Close()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, Status{Status: StateConnected, URL: "ws://b.local"}, b.Status())
	for _, s := range log.snapshot()[mark:] {
		assert.Equal(t, "ws://b.local", s.URL, "stale session leaked status %v", s)
	}
	assert.Equal(t, int32(2), f.dials.Load(), "replaced session must not reconnect")
}

func TestDisconnect(t *testing.T) {
	f := &fakeBridge{}
	b, log := newBridge(t, f, nil)

	_, err := b.Connect(testCtx(t), Options{URL: "ws://bridge.local", ReconnectDelayMs: 10})
	require.NoError(t, err)

	b.Disconnect()
	assert.Equal(t, StateDisconnected, b.Status().Status)

	select {
	case <-f.conn(0).Done():
	case <-time.After(2 * time.Second):
		t.Fatal("remote side not closed")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), f.dials.Load())

	states := log.snapshot()
	assert.Equal(t, StateDisconnected, states[len(states)-1].Status)

	err = b.Call(testCtx(t), "anything", nil, nil)
	assert.True(t, stderrors.Is(err, errors.ErrNoConnection))

	// Idempotent
	b.Disconnect()
}

func TestBridgeCallsReachHandler(t *testing.T) {
	mux := rpc.NewMux()
	mux.RegisterFunc("getNodeStatuses", func(context.Context, *rpc.Request) (any, error) {
		return map[string]string{"n1": "ok"}, nil
	})

	f := &fakeBridge{}
	b, _ := newBridge(t, f, mux)

	_, err := b.Connect(testCtx(t), Options{URL: "wss://bridge.local"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, f.conn(0).Call(testCtx(t), "getNodeStatuses", nil, &out))
	assert.Equal(t, "ok", out["n1"])
}

func TestConnectValidation(t *testing.T) {
	b, _ := newBridge(t, &fakeBridge{}, nil)

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"http scheme", "http://bridge.local"},
		{"garbage", "://"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Connect(testCtx(t), Options{URL: tt.url})
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
	assert.Equal(t, StateDisconnected, b.Status().Status)
}

func TestReconnectDelayDefault(t *testing.T) {
	assert.Equal(t, DefaultReconnectDelay, Options{}.reconnectDelay())
	assert.Equal(t, 250*time.Millisecond, Options{ReconnectDelayMs: 250}.reconnectDelay())
	assert.Nil(t, Options{}.header())
}
