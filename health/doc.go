// Package health tracks the health of the runtime's moving parts.
//
// A Monitor holds one Probe per component and runs them all on every Check,
// which suits values such as the connected peer count that are cheaper to
// compute than to track. Set pins a fixed status.
//
//	monitor := health.NewMonitor()
//	monitor.Register("bridge", func() health.Status {
//	    if bridge.Connected() {
//	        return health.NewHealthy("bridge", "connected")
//	    }
//	    return health.NewDegraded("bridge", "not connected")
//	})
//
//	http.Handle("/healthz", monitor.Handler("semflow"))
//
// Aggregation rules: any unhealthy component makes the system unhealthy;
// otherwise any degraded component makes it degraded. Error messages passed
// through FromError are stripped of URLs, paths, addresses and credentials
// before they are exposed.
package health
