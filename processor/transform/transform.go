// Package transform provides the transform node: a string operation applied
// to one message property.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
)

// Type is the registered node type name.
const Type = "transform"

// Operations.
const (
	OpUppercase = "uppercase"
	OpLowercase = "lowercase"
	OpTrim      = "trim"
)

var operations = map[string]func(string) string{
	OpUppercase: strings.ToUpper,
	OpLowercase: strings.ToLower,
	OpTrim:      strings.TrimSpace,
}

// Transform is the per-instance behavior.
type Transform struct {
	node     component.Node
	property string
	apply    func(string) string
}

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	props := n.Config()
	op := config.GetString(props, "operation", OpUppercase)
	apply, ok := operations[op]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown operation %q", errors.ErrInvalidConfig, op),
			"transform", "New", "validate operation")
	}
	return &Transform{
		node:     n,
		property: config.GetString(props, "property", message.KeyPayload),
		apply:    apply,
	}, nil
}

// OnInput rewrites the property in place and forwards the message. A
// missing or non-string property is an error.
func (t *Transform) OnInput(_ context.Context, msg message.Msg) error {
	v, ok := message.GetProperty(msg, t.property)
	if !ok {
		return fmt.Errorf("property %s not found", t.property)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("property %s is %T, not a string", t.property, v)
	}
	message.SetProperty(msg, t.property, t.apply(s))
	t.node.Send(msg)
	return nil
}

// Register adds the transform type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryProcessor,
		Description: "Applies a string operation to a message property",
		Inputs:      1,
		Outputs:     1,
		Defaults:    map[string]any{"operation": OpUppercase, "property": message.KeyPayload},
		Factory:     New,
	})
}
