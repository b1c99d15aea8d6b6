package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds process-wide metrics shared by the service layer.
// Engine metrics live with the engine and register through Registrar.
type Metrics struct {
	PeersConnected  prometheus.Gauge
	RPCCalls        *prometheus.CounterVec
	RPCDuration     *prometheus.HistogramVec
	Notifications   *prometheus.CounterVec
	BridgeConnected prometheus.Gauge
	BridgeDials     *prometheus.CounterVec
	NATSConnected   prometheus.Gauge
}

// NewMetrics creates the platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semflow",
			Subsystem: "peers",
			Name:      "connected",
			Help:      "Number of connected editor peers",
		}),

		RPCCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semflow",
				Subsystem: "rpc",
				Name:      "calls_total",
				Help:      "RPC calls handled, by surface, method and status",
			},
			[]string{"surface", "method", "status"},
		),

		RPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semflow",
				Subsystem: "rpc",
				Name:      "duration_seconds",
				Help:      "RPC handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"surface", "method"},
		),

		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semflow",
				Subsystem: "peers",
				Name:      "notifications_total",
				Help:      "Notifications fanned out to editor peers",
			},
			[]string{"method"},
		),

		BridgeConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semflow",
			Subsystem: "bridge",
			Name:      "connected",
			Help:      "Automation bridge connection state (0=down, 1=up)",
		}),

		BridgeDials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semflow",
				Subsystem: "bridge",
				Name:      "dials_total",
				Help:      "Automation bridge dial attempts by result",
			},
			[]string{"result"},
		),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semflow",
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
	}
}

func (m *Metrics) mustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.PeersConnected,
		m.RPCCalls,
		m.RPCDuration,
		m.Notifications,
		m.BridgeConnected,
		m.BridgeDials,
		m.NATSConnected,
	)
}

// RecordRPC counts one handled call. Nil receivers are ignored.
func (m *Metrics) RecordRPC(surface, method string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RPCCalls.WithLabelValues(surface, method, status).Inc()
	m.RPCDuration.WithLabelValues(surface, method).Observe(seconds)
}
