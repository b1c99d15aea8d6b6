package flowengine

import (
	"slices"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/message"
)

type catcher struct {
	node  *Node
	scope string
}

// SortCatchers returns a copy of in with every non-uncaught handler ahead of
// the uncaught ones. The sort is stable and in is not modified.
func SortCatchers[T any](in []T, scopeOf func(T) string) []T {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b T) int {
		return catchRank(scopeOf(a)) - catchRank(scopeOf(b))
	})
	return out
}

func catchRank(scope string) int {
	if scope == component.ScopeUncaught {
		return 1
	}
	return 0
}

// rebuildCatchIndex runs on the loop after a deploy.
func (r *Runtime) rebuildCatchIndex() {
	var found []catcher
	for _, id := range r.order {
		n, ok := r.nodes[id]
		if !ok {
			continue
		}
		if h, ok := n.Behavior().(component.CatchHandler); ok {
			found = append(found, catcher{node: n, scope: h.CatchScope()})
		}
	}
	r.catchers = SortCatchers(found, func(c catcher) string { return c.scope })
}

// routeError delivers an error record to every catch handler in index order.
// Uncaught handlers only receive it when no other handler did.
func (r *Runtime) routeError(rec message.Msg) {
	handled := false
	for _, c := range r.catchers {
		if !c.node.Alive() || r.skip[c.node.ID()] {
			continue
		}
		if c.scope == component.ScopeUncaught && handled {
			continue
		}
		r.metrics.recordCaught()
		r.deliver("", c.node.ID(), message.Clone(rec))
		if c.scope != component.ScopeUncaught {
			handled = true
		}
	}
}
