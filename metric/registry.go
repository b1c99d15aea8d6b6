package metric

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/semflow/errors"
)

// Collectors names the collectors one owner registers together.
type Collectors map[string]prometheus.Collector

// Registrar is what packages outside metric need to publish their own
// collectors.
type Registrar interface {
	Register(owner string, cs Collectors) error
	Unregister(owner, name string) bool
}

// MetricsRegistry owns a private Prometheus registry. Collectors are keyed
// by owner and name so a package can drop what it registered.
type MetricsRegistry struct {
	prom    *prometheus.Registry
	Metrics *Metrics

	mu    sync.Mutex
	owned map[string]prometheus.Collector
}

var _ Registrar = (*MetricsRegistry)(nil)

// NewMetricsRegistry creates a registry holding the Go and process
// collectors plus the service-level Metrics.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:    prometheus.NewRegistry(),
		Metrics: NewMetrics(),
		owned:   make(map[string]prometheus.Collector),
	}
	r.Metrics.mustRegister(r.prom)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry exposes the registry for gathering.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry { return r.prom }

// CoreMetrics returns the service-level metrics.
func (r *MetricsRegistry) CoreMetrics() *Metrics { return r.Metrics }

func key(owner, name string) string { return owner + "." + name }

// Register adds every collector in cs under owner. Registration is all or
// nothing: on the first failure the collectors already added by this call
// are removed again. Duplicate keys and Prometheus name clashes are invalid
// errors.
func (r *MetricsRegistry) Register(owner string, cs Collectors) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)

	var added []string
	rollback := func() {
		for _, k := range added {
			r.prom.Unregister(r.owned[k])
			delete(r.owned, k)
		}
	}

	for _, name := range names {
		k := key(owner, name)
		if _, dup := r.owned[k]; dup {
			rollback()
			return errors.WrapInvalid(fmt.Errorf("metric %s already registered", k),
				"MetricsRegistry", "Register", "duplicate metric registration")
		}
		if err := r.prom.Register(cs[name]); err != nil {
			rollback()
			var already prometheus.AlreadyRegisteredError
			if stderrors.As(err, &already) {
				return errors.WrapInvalid(err, "MetricsRegistry", "Register", "prometheus conflict for "+k)
			}
			return errors.WrapFatal(err, "MetricsRegistry", "Register", "register collector "+k)
		}
		r.owned[k] = cs[name]
		added = append(added, k)
	}
	return nil
}

// Unregister removes one collector. It reports false if nothing was
// registered under that key.
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(owner, name)
	c, ok := r.owned[k]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, k)
	return true
}
