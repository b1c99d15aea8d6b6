package component

import (
	"bytes"
	"encoding/json"
	"maps"

	"github.com/c360/semflow/errors"
)

// NodeDef is one node of a deployment as the editor sends it. On the wire
// it is a flat object; every key other than the identity, wiring and
// position fields lands in Config.
type NodeDef struct {
	ID     string
	Type   string
	Name   string
	Z      string
	Wires  [][]string
	X      float64
	Y      float64
	Config map[string]any
}

var reservedKeys = map[string]bool{
	"id": true, "type": true, "name": true, "z": true, "wires": true, "x": true, "y": true,
}

// IsConfig reports whether the definition belongs to no flow tab.
func (d NodeDef) IsConfig() bool {
	return d.Z == ""
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *NodeDef) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WrapInvalid(err, "NodeDef", "UnmarshalJSON", "decode node")
	}

	var out NodeDef
	fields := []struct {
		key string
		dst any
	}{
		{"id", &out.ID}, {"type", &out.Type}, {"name", &out.Name}, {"z", &out.Z},
		{"wires", &out.Wires}, {"x", &out.X}, {"y", &out.Y},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok || bytes.Equal(v, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return errors.WrapInvalid(err, "NodeDef", "UnmarshalJSON", "decode "+f.key)
		}
	}

	for k, v := range raw {
		if reservedKeys[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return errors.WrapInvalid(err, "NodeDef", "UnmarshalJSON", "decode "+k)
		}
		if out.Config == nil {
			out.Config = make(map[string]any)
		}
		out.Config[k] = val
	}

	*d = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d NodeDef) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Config)+7)
	maps.Copy(flat, d.Config)
	flat["id"] = d.ID
	flat["type"] = d.Type
	if d.Name != "" {
		flat["name"] = d.Name
	}
	if d.Z != "" {
		flat["z"] = d.Z
	}
	if d.Wires != nil {
		flat["wires"] = d.Wires
	}
	if d.X != 0 || d.Y != 0 {
		flat["x"] = d.X
		flat["y"] = d.Y
	}
	return json.Marshal(flat)
}

// comparable is the part of a definition that affects behavior.
func (d NodeDef) comparable() ([]byte, error) {
	return json.Marshal(struct {
		Z      string         `json:"z,omitempty"`
		Wires  [][]string     `json:"wires,omitempty"`
		Config map[string]any `json:"config,omitempty"`
	}{d.Z, d.Wires, d.Config})
}

// ConfigEqual reports whether two definitions would build the same
// instance. Identity, name and canvas position are ignored; everything else
// is compared through its JSON encoding, which sorts map keys.
func ConfigEqual(a, b NodeDef) bool {
	if a.Type != b.Type {
		return false
	}
	ea, errA := a.comparable()
	eb, errB := b.comparable()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
