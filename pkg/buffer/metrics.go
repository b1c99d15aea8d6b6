package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semflow/metric"
)

// bufferMetrics counts writes and drops. Size and utilization are read from
// the buffer at scrape time. A nil *bufferMetrics records nothing.
type bufferMetrics struct {
	writes prometheus.Counter
	drops  prometheus.Counter
}

type sizer interface {
	Size() int
	Capacity() int
}

func registerBufferMetrics(registry metric.Registrar, label string, b sizer) (*bufferMetrics, error) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   "semflow",
			Subsystem:   "buffer",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"buffer": label},
		}
	}

	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts(opts("writes_total", "Items written to the buffer"))),
		drops:  prometheus.NewCounter(prometheus.CounterOpts(opts("drops_total", "Items dropped by the overflow policy"))),
	}
	size := prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("size", "Items currently held")),
		func() float64 { return float64(b.Size()) })
	utilization := prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("utilization", "Fraction of capacity in use")),
		func() float64 { return float64(b.Size()) / float64(b.Capacity()) })

	err := registry.Register(label, metric.Collectors{
		"buffer_writes":      m.writes,
		"buffer_drops":       m.drops,
		"buffer_size":        size,
		"buffer_utilization": utilization,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) write() {
	if m != nil {
		m.writes.Inc()
	}
}

func (m *bufferMetrics) drop() {
	if m != nil {
		m.drops.Inc()
	}
}
