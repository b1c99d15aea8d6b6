package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/testutil"
	"github.com/c360/semflow/testutil/flowtest"
)

func TestRegisterAll(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, Register(reg))

	var types []string
	categories := map[string]string{}
	for _, info := range reg.Catalog() {
		types = append(types, info.Type)
		categories[info.Type] = info.Category
	}
	assert.Equal(t, []string{
		"catch", "change", "debug", "download", "inject",
		"mcp-in", "mcp-out", "nats-broker", "nats-in", "nats-out", "transform",
	}, types)
	assert.Equal(t, component.CategoryConfig, categories["nats-broker"])
	assert.Equal(t, component.CategoryInput, categories["inject"])
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, Register(reg))
	err := Register(reg)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterNilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestInjectTransformDebugFlow(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, Register(reg))
	h := flowtest.Start(t, reg)

	h.Deploy(t,
		testutil.WithConfig(testutil.Node("in", "inject", "f1", testutil.Out("upper")),
			map[string]any{"payload": "hello", "payloadType": "str"}),
		testutil.WithConfig(testutil.Node("upper", "transform", "f1", testutil.Out("out")),
			map[string]any{"operation": "uppercase"}),
		testutil.Node("out", "debug", "f1"),
	)
	h.Inject(t, "in", nil)

	got := h.WaitDebug(t, 1)
	assert.Equal(t, "out", got[0].NodeID)
	assert.Equal(t, "HELLO", got[0].Payload)
}

func TestErrorsReachCatchThroughChange(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, Register(reg))
	h := flowtest.Start(t, reg)

	h.Deploy(t,
		testutil.Node("upper", "transform", "f1"),
		testutil.Node("c", "catch", "f1", testutil.Out("tag")),
		testutil.WithConfig(testutil.Node("tag", "change", "f1", testutil.Out("out")), map[string]any{
			"rules": []any{map[string]any{"t": "move", "p": "error.source.id", "to": "payload"}},
		}),
		testutil.Node("out", "debug", "f1"),
	)
	h.Trigger(t, "upper", map[string]any{"payload": 5})

	got := h.WaitDebug(t, 1)
	assert.Equal(t, "upper", got[0].Payload)
}
