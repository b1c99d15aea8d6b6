package flowengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/component"
)

type recordingObserver struct {
	mu        sync.Mutex
	logs      []component.LogEntry
	statuses  []StatusEvent
	errs      []ErrorEvent
	debug     []DebugEvent
	downloads []DownloadEvent
}

func (o *recordingObserver) OnLog(e component.LogEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logs = append(o.logs, e)
}

func (o *recordingObserver) OnStatus(e StatusEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, e)
}

func (o *recordingObserver) OnError(e ErrorEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, e)
}

func (o *recordingObserver) OnDebug(e DebugEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.debug = append(o.debug, e)
}

func (o *recordingObserver) OnDownload(e DownloadEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.downloads = append(o.downloads, e)
}

func (o *recordingObserver) errors() []ErrorEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ErrorEvent(nil), o.errs...)
}

func (o *recordingObserver) statusesFor(id string) []component.Status {
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

func (o *recordingObserver) logsAt(level component.LogLevel) []component.LogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []component.LogEntry
	for _, e := range o.logs {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// startRuntime runs a runtime for the duration of the test.
func startRuntime(t *testing.T, reg *component.Registry) (*Runtime, *recordingObserver) {
	t.Helper()

	obs := &recordingObserver{}
	rt := New(reg, WithObserver(obs))

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
	return rt, obs
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustDeploy(t *testing.T, rt *Runtime, req DeployRequest) DeployResult {
	t.Helper()
	ctx := testCtx(t)
	res, err := rt.Deploy(ctx, req)
	require.NoError(t, err)
	require.NoError(t, rt.WaitIdle(ctx))
	return res
}

func idle(t *testing.T, rt *Runtime) {
	t.Helper()
	require.NoError(t, rt.WaitIdle(testCtx(t)))
}
