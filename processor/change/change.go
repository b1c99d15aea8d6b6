// Package change provides the change node: an ordered list of set, delete
// and move rules over message properties.
package change

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
)

// Type is the registered node type name.
const Type = "change"

// Rule actions.
const (
	ActionSet    = "set"
	ActionDelete = "delete"
	ActionMove   = "move"
)

// Rule is one step. Property is a dotted path; To is the value for set and
// the destination path for move.
type Rule struct {
	Action   string `json:"t"`
	Property string `json:"p"`
	To       any    `json:"to,omitempty"`
}

func (r Rule) validate() error {
	if r.Property == "" {
		return fmt.Errorf("%w: rule without property", errors.ErrInvalidConfig)
	}
	switch r.Action {
	case ActionSet, ActionDelete:
	case ActionMove:
		if to, ok := r.To.(string); !ok || to == "" {
			return fmt.Errorf("%w: move rule needs a destination path", errors.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", errors.ErrInvalidConfig, r.Action)
	}
	return nil
}

// ParseRules reads the rules property, a list of rule objects.
func ParseRules(props map[string]any) ([]Rule, error) {
	raw, ok := props["rules"]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "change", "ParseRules", "encode rules")
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, errors.WrapInvalid(err, "change", "ParseRules", "decode rules")
	}
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return nil, errors.WrapInvalid(err, "change", "ParseRules", fmt.Sprintf("validate rule %d", i))
		}
	}
	return rules, nil
}

// Apply runs rules against msg in order.
func Apply(msg message.Msg, rules []Rule) {
	for _, r := range rules {
		switch r.Action {
		case ActionSet:
			message.SetProperty(msg, r.Property, message.CloneValue(r.To))
		case ActionDelete:
			message.DeleteProperty(msg, r.Property)
		case ActionMove:
			v, ok := message.GetProperty(msg, r.Property)
			if !ok {
				continue
			}
			message.DeleteProperty(msg, r.Property)
			message.SetProperty(msg, r.To.(string), v)
		}
	}
}

// Change is the per-instance behavior.
type Change struct {
	node  component.Node
	rules []Rule
}

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	rules, err := ParseRules(n.Config())
	if err != nil {
		return nil, err
	}
	return &Change{node: n, rules: rules}, nil
}

// OnInput applies the rules and forwards the message.
func (c *Change) OnInput(_ context.Context, msg message.Msg) error {
	Apply(msg, c.rules)
	c.node.Send(msg)
	return nil
}

// Register adds the change type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryProcessor,
		Description: "Sets, deletes or moves message properties",
		Inputs:      1,
		Outputs:     1,
		Defaults:    map[string]any{"rules": []any{}},
		Factory:     New,
	})
}
