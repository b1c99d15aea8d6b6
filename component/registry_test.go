package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
)

func noopFactory(Node) (Behavior, error) { return struct{}{}, nil }

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(Registration{Type: "debug", Category: CategoryOutput, Inputs: 1, Factory: noopFactory}))
	require.NoError(t, r.Register(Registration{Type: "change", Factory: noopFactory}))

	reg, ok := r.Lookup("change")
	require.True(t, ok)
	assert.Equal(t, CategoryProcessor, reg.Category, "category defaults to processor")

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	catalog := r.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "change", catalog[0].Type)
	assert.Equal(t, "debug", catalog[1].Type)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		reg  Registration
	}{
		{"empty type", Registration{Type: " ", Factory: noopFactory}},
		{"nil factory", Registration{Type: "x"}},
		{"bad category", Registration{Type: "x", Category: "storage", Factory: noopFactory}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Register(tc.reg)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	require.NoError(t, r.Register(Registration{Type: "x", Factory: noopFactory}))
	err := r.Register(Registration{Type: "x", Factory: noopFactory})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateType)
}

func TestLogLevel(t *testing.T) {
	assert.True(t, LogLevelWarn.Valid())
	assert.False(t, LogLevel("trace").Valid())
	assert.Equal(t, "ERROR", LogLevelError.SlogLevel().String())
	assert.Equal(t, "INFO", LogLevel("other").SlogLevel().String())
}

func TestStatus_IsZero(t *testing.T) {
	assert.True(t, Status{}.IsZero())
	assert.False(t, Status{Text: "ok"}.IsZero())
}
