// Package componentregistry registers the built-in node types.
package componentregistry

import (
	"errors"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/connection/natsbroker"
	pkgerrors "github.com/c360/semflow/errors"
	"github.com/c360/semflow/input/inject"
	"github.com/c360/semflow/input/mcpin"
	"github.com/c360/semflow/input/natsin"
	"github.com/c360/semflow/output/debug"
	"github.com/c360/semflow/output/download"
	"github.com/c360/semflow/output/mcpout"
	"github.com/c360/semflow/output/natsout"
	"github.com/c360/semflow/processor/catch"
	"github.com/c360/semflow/processor/change"
	"github.com/c360/semflow/processor/transform"
)

// Register registers every built-in node type with registry:
//
// Inputs: inject, mcp-in, nats-in
// Processors: catch, change, transform
// Outputs: debug, download, mcp-out, nats-out
// Config: nats-broker
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	steps := []struct {
		name     string
		register func(*component.Registry) error
	}{
		{"nats-broker config node", natsbroker.Register},
		{"inject input", inject.Register},
		{"mcp-in input", mcpin.Register},
		{"nats-in input", natsin.Register},
		{"catch processor", catch.Register},
		{"change processor", change.Register},
		{"transform processor", transform.Register},
		{"debug output", debug.Register},
		{"download output", download.Register},
		{"mcp-out output", mcpout.Register},
		{"nats-out output", natsout.Register},
	}
	for _, step := range steps {
		if err := step.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", step.name+" registration")
		}
	}
	return nil
}
