// Package catch provides the catch node, which receives error records
// reported by other nodes.
package catch

import (
	"context"
	"fmt"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
)

// Type is the registered node type name.
const Type = "catch"

// Catch is the per-instance behavior.
type Catch struct {
	node  component.Node
	scope string
}

var _ component.CatchHandler = (*Catch)(nil)

// New builds the behavior for n. The scope defaults to all.
func New(n component.Node) (component.Behavior, error) {
	scope := config.GetString(n.Config(), "scope", component.ScopeAll)
	switch scope {
	case "", component.ScopeAll:
		scope = component.ScopeAll
	case component.ScopeUncaught:
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown scope %q", errors.ErrInvalidConfig, scope),
			"catch", "New", "validate scope")
	}
	return &Catch{node: n, scope: scope}, nil
}

// CatchScope implements component.CatchHandler.
func (c *Catch) CatchScope() string {
	return c.scope
}

// OnInput forwards the error record on output 0.
func (c *Catch) OnInput(_ context.Context, msg message.Msg) error {
	c.node.Send(msg)
	return nil
}

// Register adds the catch type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryProcessor,
		Description: "Catches errors thrown by nodes",
		Outputs:     1,
		Defaults:    map[string]any{"scope": component.ScopeAll},
		Factory:     New,
	})
}
