package component

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/c360/semflow/errors"
)

// Node categories shown in the editor palette.
const (
	CategoryInput     = "input"
	CategoryProcessor = "processor"
	CategoryOutput    = "output"
	CategoryConfig    = "config"
)

// Factory builds the behavior for one deployed instance. It runs on the
// runtime loop and must not block; I/O belongs in Init.
type Factory func(n Node) (Behavior, error)

// Registration describes a node type.
type Registration struct {
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Inputs      int            `json:"inputs"`
	Outputs     int            `json:"outputs"`
	Defaults    map[string]any `json:"defaults,omitempty"`
	Factory     Factory        `json:"-"`
}

// Info is the serializable part of a Registration.
type Info struct {
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Inputs      int            `json:"inputs"`
	Outputs     int            `json:"outputs"`
	Defaults    map[string]any `json:"defaults,omitempty"`
}

// Info returns the registration metadata.
func (r *Registration) Info() Info {
	return Info{
		Type:        r.Type,
		Category:    r.Category,
		Description: r.Description,
		Inputs:      r.Inputs,
		Outputs:     r.Outputs,
		Defaults:    r.Defaults,
	}
}

// Registry maps node type names to registrations.
type Registry struct {
	types map[string]*Registration
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Registration)}
}

// Register adds a node type. Type names are unique.
func (r *Registry) Register(reg Registration) error {
	if strings.TrimSpace(reg.Type) == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "type name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory validation")
	}
	switch reg.Category {
	case CategoryInput, CategoryProcessor, CategoryOutput, CategoryConfig:
	case "":
		reg.Category = CategoryProcessor
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown category %q", reg.Category),
			"Registry", "Register", "category validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[reg.Type]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDuplicateType, reg.Type),
			"Registry", "Register", "duplicate type check")
	}
	r.types[reg.Type] = &reg
	return nil
}

// Lookup returns the registration for a type.
func (r *Registry) Lookup(typ string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[typ]
	return reg, ok
}

// Catalog lists every registered type sorted by name.
func (r *Registry) Catalog() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.types))
	for _, reg := range r.types {
		out = append(out, reg.Info())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Type, b.Type) })
	return out
}
