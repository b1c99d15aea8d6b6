// Package flowtest runs a flow runtime inside a test and records what its
// nodes report.
package flowtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/component"
	flowengine "github.com/c360/semflow/engine"
)

// Observer records every event the runtime reports.
type Observer struct {
	mu        sync.Mutex
	logs      []component.LogEntry
	statuses  []flowengine.StatusEvent
	errs      []flowengine.ErrorEvent
	debug     []flowengine.DebugEvent
	downloads []flowengine.DownloadEvent
}

var _ flowengine.Observer = (*Observer)(nil)

func (o *Observer) OnLog(e component.LogEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logs = append(o.logs, e)
}

func (o *Observer) OnStatus(e flowengine.StatusEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, e)
}

func (o *Observer) OnError(e flowengine.ErrorEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, e)
}

func (o *Observer) OnDebug(e flowengine.DebugEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.debug = append(o.debug, e)
}

func (o *Observer) OnDownload(e flowengine.DownloadEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.downloads = append(o.downloads, e)
}

// Logs returns the log entries seen so far.
func (o *Observer) Logs() []component.LogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]component.LogEntry(nil), o.logs...)
}

// Errors returns the error events seen so far.
func (o *Observer) Errors() []flowengine.ErrorEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]flowengine.ErrorEvent(nil), o.errs...)
}

// Debug returns the debug events seen so far.
func (o *Observer) Debug() []flowengine.DebugEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]flowengine.DebugEvent(nil), o.debug...)
}

// Downloads returns the download events seen so far.
func (o *Observer) Downloads() []flowengine.DownloadEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]flowengine.DownloadEvent(nil), o.downloads...)
}

// Statuses returns the status changes reported by node id.
func (o *Observer) Statuses(id string) []component.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []component.Status
	for _, s := range o.statuses {
		if s.NodeID == id {
			out = append(out, s.Status)
		}
	}
	return out
}

// Harness is a running runtime bound to a test.
type Harness struct {
	Runtime  *flowengine.Runtime
	Observer *Observer
}

// Start runs a runtime over reg until the test ends.
func Start(t testing.TB, reg *component.Registry) *Harness {
	t.Helper()

	obs := &Observer{}
	rt := flowengine.New(reg, flowengine.WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &Harness{Runtime: rt, Observer: obs}
}

// Ctx returns a context that expires with the test or after five seconds.
func Ctx(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Deploy sends defs as one full deployment, splitting out config nodes, and
// waits until the loop is idle.
func (h *Harness) Deploy(t testing.TB, defs ...component.NodeDef) flowengine.DeployResult {
	t.Helper()

	var req flowengine.DeployRequest
	for _, def := range defs {
		if def.IsConfig() {
			req.ConfigNodes = append(req.ConfigNodes, def)
		} else {
			req.Nodes = append(req.Nodes, def)
		}
	}
	res, err := h.Runtime.Deploy(Ctx(t), req)
	require.NoError(t, err)
	h.Idle(t)
	return res
}

// Inject fires an injectable node and waits for the loop to drain.
func (h *Harness) Inject(t testing.TB, id string, payload any) {
	t.Helper()
	require.NoError(t, h.Runtime.Inject(Ctx(t), id, payload))
	h.Idle(t)
}

// Trigger delivers msg to a node's input and waits for the loop to drain.
func (h *Harness) Trigger(t testing.TB, id string, msg map[string]any) {
	t.Helper()
	require.NoError(t, h.Runtime.Trigger(Ctx(t), id, msg))
	h.Idle(t)
}

// Idle blocks until the runtime has no queued work.
func (h *Harness) Idle(t testing.TB) {
	t.Helper()
	require.NoError(t, h.Runtime.WaitIdle(Ctx(t)))
}

// WaitDebug waits until at least n debug events were reported.
func (h *Harness) WaitDebug(t testing.TB, n int) []flowengine.DebugEvent {
	t.Helper()
	var got []flowengine.DebugEvent
	require.Eventually(t, func() bool {
		got = h.Observer.Debug()
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d debug events", n)
	return got
}
