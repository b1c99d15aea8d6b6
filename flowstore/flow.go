package flowstore

import (
	"encoding/json"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
)

// Tab-level entries of a flows document. They describe editor tabs and
// subflow templates rather than nodes.
var tabTypes = map[string]bool{"tab": true, "subflow": true, "group": true}

// DecodeFlows parses a saved flows document.
func DecodeFlows(raw json.RawMessage) ([]component.NodeDef, error) {
	var defs []component.NodeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, errors.WrapInvalid(err, "flowstore", "DecodeFlows", "decode flows document")
	}
	return defs, nil
}

// Split separates node definitions into ordinary and config nodes, dropping
// tab entries.
func Split(defs []component.NodeDef) (nodes, configs []component.NodeDef) {
	for _, def := range defs {
		switch {
		case tabTypes[def.Type]:
		case def.IsConfig():
			configs = append(configs, def)
		default:
			nodes = append(nodes, def)
		}
	}
	return nodes, configs
}
