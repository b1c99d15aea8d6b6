package health

import (
	"cmp"
	"slices"
	"time"
)

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy, NewDegraded and NewUnhealthy stamp a status with the current time.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// severity orders states so the worst one wins during aggregation.
var severity = map[string]int{StateHealthy: 0, StateDegraded: 1, StateUnhealthy: 2}

var aggregateMessages = [...]string{
	"All sub-components are healthy",
	"One or more sub-components are degraded",
	"One or more sub-components are unhealthy",
}

var statesBySeverity = [...]string{StateHealthy, StateDegraded, StateUnhealthy}

// Aggregate reports the worst state among subs. The sub-statuses are copied
// and sorted by component name.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	worst := 0
	for _, s := range subs {
		worst = max(worst, severity[s.Status])
	}

	out := newStatus(component, statesBySeverity[worst], aggregateMessages[worst])
	out.SubStatuses = slices.Clone(subs)
	slices.SortFunc(out.SubStatuses, func(a, b Status) int {
		return cmp.Compare(a.Component, b.Component)
	})
	return out
}
