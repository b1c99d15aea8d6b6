package mcpin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/pkg/events"
	"github.com/c360/semflow/testutil"
	"github.com/c360/semflow/testutil/flowtest"
)

func TestBridgeMessagesEnterFlow(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, Register(reg))
	sinks := testutil.MockType(t, reg, "sink", nil)
	h := flowtest.Start(t, reg)

	h.Deploy(t,
		testutil.Node("any", Type, "f1", testutil.Out("sink")),
		testutil.WithConfig(testutil.Node("orders", Type, "f1", testutil.Out("sink")),
			map[string]any{"topic": "orders"}),
		testutil.Node("sink", "sink", "f1"),
	)

	payload := map[string]any{"qty": 2.0}
	delivered := events.Publish(h.Runtime.Shared(), component.ExternalMessage{Payload: payload, Topic: "orders"})
	assert.Equal(t, 2, delivered)
	events.Publish(h.Runtime.Shared(), component.ExternalMessage{Payload: "x", Topic: "other"})

	got := sinks.WaitFor(t, "sink", 3)
	h.Idle(t)
	assert.Len(t, sinks.Received("sink"), 3, "filtered node skips other topics")

	payload["qty"] = 99.0
	assert.Equal(t, map[string]any{"qty": 2.0}, got[0].Payload(), "payload copied on receipt")
}

func TestUnsubscribesOnRedeploy(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, Register(reg))
	h := flowtest.Start(t, reg)

	h.Deploy(t, testutil.Node("in", Type, "f1"))
	assert.Equal(t, 1, events.Count[component.ExternalMessage](h.Runtime.Shared()))

	h.Deploy(t)
	assert.Zero(t, events.Count[component.ExternalMessage](h.Runtime.Shared()))
}
