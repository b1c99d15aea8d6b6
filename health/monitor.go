package health

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Probe reports the current health of one component on demand.
type Probe func() Status

// Monitor evaluates registered probes whenever health is read. Nothing is
// cached, so a report always reflects the moment it was taken.
type Monitor struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{probes: make(map[string]Probe)}
}

// Register installs or replaces the probe for name.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	m.probes[name] = probe
	m.mu.Unlock()
}

// Set pins name to a fixed status until it is registered again or removed.
func (m *Monitor) Set(name string, st Status) {
	m.Register(name, func() Status { return st })
}

// Remove stops reporting name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.probes, name)
	m.mu.Unlock()
}

// Check runs every probe, outside the lock, and aggregates the results
// under systemName.
func (m *Monitor) Check(systemName string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	probes := make([]Probe, 0, len(m.probes))
	for name, p := range m.probes {
		names = append(names, name)
		probes = append(probes, p)
	}
	m.mu.RUnlock()

	subs := make([]Status, len(probes))
	for i, p := range probes {
		st := p()
		st.Component = names[i]
		if st.Timestamp.IsZero() {
			st.Timestamp = time.Now()
		}
		subs[i] = st
	}
	return Aggregate(systemName, subs)
}

// Components lists registered names in order.
func (m *Monitor) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Handler serves Check as JSON, answering 503 while the system is
// unhealthy.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st := m.Check(systemName)
		w.Header().Set("Content-Type", "application/json")
		if st.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	})
}
