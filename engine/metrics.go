package flowengine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semflow/metric"
)

// engineMetrics holds Prometheus metrics for the runtime.
type engineMetrics struct {
	deploys        *prometheus.CounterVec // by status (success/failure)
	deployDuration prometheus.Histogram
	nodeFailures   *prometheus.CounterVec // by phase (construct/init/async_init)

	deliveries *prometheus.CounterVec // by result (delivered/skipped/dead)
	nodeErrors *prometheus.CounterVec // by node_type
	caught     prometheus.Counter

	liveNodes  *prometheus.GaugeVec // by kind (ordinary/config)
	queueDepth prometheus.Gauge
}

// newEngineMetrics creates and registers runtime metrics with the provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "deploys_total",
			Help:      "Total number of deploy operations",
		}, []string{"status"}),

		deployDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "deploy_duration_seconds",
			Help:      "Deploy duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		}),

		nodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "node_build_failures_total",
			Help:      "Nodes omitted from a deploy because they failed to build",
		}, []string{"phase"}),

		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "deliveries_total",
			Help:      "Message deliveries by result",
		}, []string{"result"}), // delivered, skipped, dead

		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "node_errors_total",
			Help:      "Errors reported by nodes",
		}, []string{"node_type"}),

		caught: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "caught_errors_total",
			Help:      "Error records delivered to catch nodes",
		}),

		liveNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "live_nodes",
			Help:      "Current number of live node instances",
		}, []string{"kind"}),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semflow",
			Subsystem: "runtime",
			Name:      "queue_depth",
			Help:      "Pending tasks on the runtime loop",
		}),
	}

	if err := registry.Register("runtime", metric.Collectors{
		"deploys":             m.deploys,
		"deploy_duration":     m.deployDuration,
		"node_build_failures": m.nodeFailures,
		"deliveries":          m.deliveries,
		"node_errors":         m.nodeErrors,
		"caught_errors":       m.caught,
		"live_nodes":          m.liveNodes,
		"queue_depth":         m.queueDepth,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *engineMetrics) recordDeploy(success bool, duration float64) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	m.deploys.WithLabelValues(status).Inc()
	m.deployDuration.Observe(duration)
}

func (m *engineMetrics) recordBuildFailure(phase string) {
	if m != nil {
		m.nodeFailures.WithLabelValues(phase).Inc()
	}
}

func (m *engineMetrics) recordDelivery(result string) {
	if m != nil {
		m.deliveries.WithLabelValues(result).Inc()
	}
}

func (m *engineMetrics) recordNodeError(nodeType string) {
	if m != nil {
		m.nodeErrors.WithLabelValues(nodeType).Inc()
	}
}

func (m *engineMetrics) recordCaught() {
	if m != nil {
		m.caught.Inc()
	}
}

func (m *engineMetrics) setLiveNodes(ordinary, config int) {
	if m == nil {
		return
	}
	m.liveNodes.WithLabelValues("ordinary").Set(float64(ordinary))
	m.liveNodes.WithLabelValues("config").Set(float64(config))
}

func (m *engineMetrics) setQueueDepth(depth int) {
	if m != nil {
		m.queueDepth.Set(float64(depth))
	}
}
