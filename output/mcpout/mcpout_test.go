package mcpout

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/pkg/events"
	"github.com/c360/semflow/testutil"
	"github.com/c360/semflow/testutil/flowtest"
)

func TestQueuesCopies(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, Register(reg))
	h := flowtest.Start(t, reg)

	var (
		mu  sync.Mutex
		got []component.OutboundMessage
	)
	unsubscribe := events.Subscribe(h.Runtime.Shared(), func(m component.OutboundMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m)
	})
	defer unsubscribe()

	h.Deploy(t, testutil.Node("out", Type, "f1"))
	h.Trigger(t, "out", map[string]any{"payload": map[string]any{"a": 1.0}, "topic": "t"})
	h.Trigger(t, "out", map[string]any{"payload": "second"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "out", got[0].NodeID)
	assert.Equal(t, map[string]any{"a": 1.0}, got[0].Msg.Payload())
	assert.Equal(t, "t", got[0].Msg.Topic())

	statuses := h.Observer.Statuses("out")
	require.NotEmpty(t, statuses)
	assert.Equal(t, "2 queued", statuses[len(statuses)-1].Text)
}
