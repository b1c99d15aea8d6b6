// Package debug provides the debug node, which reports message values to
// connected editors.
package debug

import (
	"context"
	"fmt"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/message"
)

// Type is the registered node type name.
const Type = "debug"

const maxStatusLen = 32

// Config is the node's property set.
type Config struct {
	// Complete is the message property to report; "true" or "complete"
	// reports the whole message.
	Complete string
	Active   bool
	Console  bool
	ToStatus bool
}

// ParseConfig reads the node's properties.
func ParseConfig(props map[string]any) Config {
	return Config{
		Complete: config.GetString(props, "complete", message.KeyPayload),
		Active:   config.GetBool(props, "active", true),
		Console:  config.GetBool(props, "console", false),
		ToStatus: config.GetBool(props, "tostatus", false),
	}
}

func (c Config) wholeMessage() bool {
	return c.Complete == "true" || c.Complete == "complete"
}

// Debug is the per-instance behavior.
type Debug struct {
	node component.Node
	cfg  Config
}

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	return &Debug{node: n, cfg: ParseConfig(n.Config())}, nil
}

// OnInput reports the selected property. Missing properties report nil.
func (d *Debug) OnInput(_ context.Context, msg message.Msg) error {
	if !d.cfg.Active {
		return nil
	}

	property := d.cfg.Complete
	var value any
	if d.cfg.wholeMessage() {
		property = "msg"
		value = message.Clone(msg)
	} else {
		v, _ := message.GetProperty(msg, d.cfg.Complete)
		value = message.CloneValue(v)
	}

	d.node.Debug(component.DebugOutput{
		Property: property,
		Value:    value,
		Topic:    msg.Topic(),
		MsgID:    msg.ID(),
	})

	if d.cfg.Console {
		d.node.Log(fmt.Sprintf("%s: %v", property, value))
	}
	if d.cfg.ToStatus {
		text := fmt.Sprint(value)
		if len(text) > maxStatusLen {
			text = text[:maxStatusLen] + "..."
		}
		d.node.Status(component.Status{Fill: "grey", Shape: "dot", Text: text})
	}
	return nil
}

// Register adds the debug type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryOutput,
		Description: "Shows message values in the editor debug sidebar",
		Inputs:      1,
		Defaults: map[string]any{
			"complete": message.KeyPayload,
			"active":   true,
			"console":  false,
			"tostatus": false,
		},
		Factory: New,
	})
}
