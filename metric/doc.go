// Package metric provides the Prometheus registry and metrics HTTP server.
//
// MetricsRegistry wraps a private prometheus.Registry with the Go and process
// collectors, a small set of service-level metrics (peer count, RPC calls,
// bridge state) and keyed registration for metrics owned by other packages.
// The engine and the ring buffers register their own collectors as one
// group through Registrar.Register; a duplicate rolls the whole group back
// and comes back as an invalid error.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9090", "/metrics", registry)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
package metric
