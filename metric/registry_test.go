package metric

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/c360/semflow/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())

	registry.CoreMetrics().PeersConnected.Set(2)
	names := gatheredNames(t, registry)
	assert.True(t, names["semflow_peers_connected"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_hist", Help: "h"})
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_vec", Help: "v"}, []string{"k"})

	require.NoError(t, registry.Register("svc", Collectors{
		"counter": counter,
		"gauge":   gauge,
		"hist":    hist,
		"vec":     vec,
	}))

	counter.Inc()
	gauge.Set(1)
	hist.Observe(0.2)
	vec.WithLabelValues("a").Inc()

	names := gatheredNames(t, registry)
	for _, n := range []string{"test_counter", "test_gauge", "test_hist", "test_vec"} {
		assert.True(t, names[n], n)
	}
}

func TestMetricsRegistry_Duplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "d"})
	require.NoError(t, registry.Register("svc", Collectors{"dup": first}))

	err := registry.Register("svc", Collectors{"dup": first})
	require.Error(t, err)
	assert.True(t, cerrors.IsInvalid(err))

	// Different key, same prometheus name
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "d"})
	err = registry.Register("other", Collectors{"dup": second})
	require.Error(t, err)
	assert.True(t, cerrors.IsInvalid(err))
}

func TestMetricsRegistry_RegisterRollsBack(t *testing.T) {
	registry := NewMetricsRegistry()

	taken := prometheus.NewGauge(prometheus.GaugeOpts{Name: "taken", Help: "t"})
	require.NoError(t, registry.Register("a", Collectors{"taken": taken}))

	fresh := prometheus.NewGauge(prometheus.GaugeOpts{Name: "fresh", Help: "f"})
	clash := prometheus.NewGauge(prometheus.GaugeOpts{Name: "taken", Help: "t"})
	// "fresh" sorts before "zclash", so it is added and then rolled back.
	err := registry.Register("b", Collectors{"fresh": fresh, "zclash": clash})
	require.Error(t, err)

	assert.False(t, registry.Unregister("b", "fresh"))
	require.NoError(t, registry.Register("c", Collectors{"fresh": fresh}))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "gone", Help: "g"})
	require.NoError(t, registry.Register("svc", Collectors{"gone": gauge}))

	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))
	require.NoError(t, registry.Register("svc", Collectors{"gone": gauge}))
}

func TestMetrics_RecordRPC(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordRPC("editor", "deploy", nil, 0.01)
	m.RecordRPC("editor", "deploy", errors.New("boom"), 0.02)

	var nilMetrics *Metrics
	nilMetrics.RecordRPC("editor", "deploy", nil, 0)

	names := gatheredNames(t, registry)
	assert.True(t, names["semflow_rpc_calls_total"])
	assert.True(t, names["semflow_rpc_duration_seconds"])
}

func TestServer_StartStop(t *testing.T) {
	registry := NewMetricsRegistry()
	server := NewServer("127.0.0.1:0", "", registry)

	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop(context.Background()) })

	err := server.Start()
	require.Error(t, err)

	resp, err := http.Get(server.Address())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "semflow_peers_connected")

	require.NoError(t, server.Stop(context.Background()))
	require.NoError(t, server.Stop(context.Background()))
}
