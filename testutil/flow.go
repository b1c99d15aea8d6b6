package testutil

import (
	"github.com/c360/semflow/component"
)

// Node builds an ordinary node definition on flow tab z. Each wires entry is
// one output.
func Node(id, typ, z string, wires ...[]string) component.NodeDef {
	if wires == nil {
		wires = [][]string{}
	}
	return component.NodeDef{ID: id, Type: typ, Name: id, Z: z, Wires: wires}
}

// WithConfig returns def with cfg merged into its config.
func WithConfig(def component.NodeDef, cfg map[string]any) component.NodeDef {
	merged := make(map[string]any, len(def.Config)+len(cfg))
	for k, v := range def.Config {
		merged[k] = v
	}
	for k, v := range cfg {
		merged[k] = v
	}
	def.Config = merged
	return def
}

// ConfigNode builds a config node definition.
func ConfigNode(id, typ string, cfg map[string]any) component.NodeDef {
	return component.NodeDef{ID: id, Type: typ, Name: id, Config: cfg}
}

// Out lists the targets of one output.
func Out(targets ...string) []string {
	return targets
}

// NestedPayload returns a message body with maps and lists several levels
// deep, for isolation tests.
func NestedPayload() map[string]any {
	return map[string]any{
		"payload": map[string]any{
			"user": map[string]any{
				"name": "ada",
				"tags": []any{"a", "b", map[string]any{"deep": true}},
			},
			"count": 3.0,
		},
		"topic": "nested",
	}
}
