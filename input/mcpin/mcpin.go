// Package mcpin provides the mcp-in node, which feeds messages sent by the
// automation bridge into a flow.
package mcpin

import (
	"context"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/message"
	"github.com/c360/semflow/pkg/events"
)

// Type is the registered node type name.
const Type = "mcp-in"

// In is the per-instance behavior. An empty topic accepts every message.
type In struct {
	node  component.Node
	topic string
}

var _ component.Initializer = (*In)(nil)

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	return &In{node: n, topic: config.GetString(n.Config(), "topic", "")}, nil
}

// Init subscribes to bridge messages on the runtime bus.
func (i *In) Init(context.Context) error {
	unsubscribe := events.Subscribe(i.node.Shared(), i.handle)
	i.node.OnClose(func(context.Context) error {
		unsubscribe()
		return nil
	})
	return nil
}

// handle runs on the publisher's goroutine and hops onto the loop.
func (i *In) handle(ev component.ExternalMessage) {
	if i.topic != "" && ev.Topic != i.topic {
		return
	}
	payload := message.CloneValue(ev.Payload)
	i.node.Post(func() {
		i.node.Send(message.New(payload, ev.Topic))
	})
}

// Register adds the mcp-in type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryInput,
		Description: "Receives messages sent through the automation bridge",
		Outputs:     1,
		Defaults:    map[string]any{"topic": ""},
		Factory:     New,
	})
}
