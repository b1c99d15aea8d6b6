package flowengine

import (
	"github.com/c360/semflow/component"
	"github.com/c360/semflow/message"
)

// normalize turns any accepted Send argument into per-output slots.
//
//	msg                 -> [[msg]]
//	[msg, msg]          -> [[msg, msg]]
//	[msg, nil, [m, m]]  -> [[msg], nil, [m, m]]
func normalize(v any) component.Outputs {
	switch t := v.(type) {
	case nil:
		return nil
	case message.Msg:
		return component.Outputs{{t}}
	case map[string]any:
		return component.Outputs{{message.Msg(t)}}
	case []message.Msg:
		return component.Outputs{t}
	case []map[string]any:
		return component.Outputs{toSlot(t)}
	case component.Outputs:
		return t
	case [][]message.Msg:
		return component.Outputs(t)
	case []any:
		if !perOutput(t) {
			return component.Outputs{toSlot(t)}
		}
		out := make(component.Outputs, len(t))
		for i, e := range t {
			out[i] = toSlot(e)
		}
		return out
	default:
		return nil
	}
}

// perOutput reports whether a list addresses outputs rather than carrying
// messages for output 0.
func perOutput(list []any) bool {
	for _, e := range list {
		switch e.(type) {
		case nil, []any, []message.Msg, []map[string]any:
			return true
		}
	}
	return false
}

// toSlot collects the messages of one output. Non-message values are ignored.
func toSlot(v any) []message.Msg {
	switch t := v.(type) {
	case nil:
		return nil
	case message.Msg:
		return []message.Msg{t}
	case map[string]any:
		return []message.Msg{t}
	case []message.Msg:
		return t
	case []map[string]any:
		out := make([]message.Msg, 0, len(t))
		for _, m := range t {
			out = append(out, m)
		}
		return out
	case []any:
		out := make([]message.Msg, 0, len(t))
		for _, e := range t {
			if m, ok := message.FromMap(e); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// route schedules one delivery per (message, wire target). Every message is
// stamped with an id before cloning so all copies share it, and every target
// receives its own clone.
func (r *Runtime) route(from *Node, outs component.Outputs) {
	wires := from.Wires()
	for port, slot := range outs {
		if port >= len(wires) {
			break
		}
		targets := wires[port]
		if len(targets) == 0 {
			continue
		}
		for _, msg := range slot {
			if msg == nil {
				continue
			}
			message.EnsureID(msg)
			for _, target := range targets {
				r.deliver(from.ID(), target, message.Clone(msg))
			}
		}
	}
}

// deliver enqueues msg for target. Skip and liveness are checked when the
// task runs, not when it is scheduled.
func (r *Runtime) deliver(from, target string, msg message.Msg) {
	r.enqueue(func() {
		if r.skip[from] || r.skip[target] {
			r.metrics.recordDelivery("skipped")
			return
		}
		n, ok := r.nodes[target]
		if !ok || !n.Alive() {
			r.metrics.recordDelivery("dead")
			return
		}
		r.metrics.recordDelivery("delivered")
		n.receive(msg)
	})
}
