// Package mcpout provides the mcp-out node, which queues messages for the
// automation bridge to collect.
package mcpout

import (
	"context"
	"fmt"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/message"
	"github.com/c360/semflow/pkg/events"
)

// Type is the registered node type name.
const Type = "mcp-out"

// Out is the per-instance behavior.
type Out struct {
	node component.Node
	sent int
}

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	return &Out{node: n}, nil
}

// OnInput publishes a copy of msg on the runtime bus.
func (o *Out) OnInput(_ context.Context, msg message.Msg) error {
	events.Publish(o.node.Shared(), component.OutboundMessage{
		NodeID: o.node.ID(),
		Msg:    message.Clone(msg),
	})
	o.sent++
	o.node.Status(component.Status{Fill: "green", Shape: "dot", Text: fmt.Sprintf("%d queued", o.sent)})
	return nil
}

// Register adds the mcp-out type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryOutput,
		Description: "Queues messages for the automation bridge",
		Inputs:      1,
		Factory:     New,
	})
}
