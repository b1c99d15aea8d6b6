package flowengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/semflow/metric"
)

func TestTaskQueue(t *testing.T) {
	q := newTaskQueue()

	var ran []int
	for i := 0; i < 3; i++ {
		i := i
		assert.True(t, q.enqueue(func() { ran = append(ran, i) }))
	}
	assert.Equal(t, 3, q.len())

	for {
		task, ok := q.tryDequeue()
		if !ok {
			break
		}
		task()
	}
	assert.Equal(t, []int{0, 1, 2}, ran)

	q.enqueue(func() {})
	assert.Equal(t, 1, q.close())
	assert.False(t, q.enqueue(func() {}))
	assert.Zero(t, q.close())

	_, open := <-q.wait()
	assert.False(t, open)
}

func TestTaskQueueCloseDiscardsPendingWake(t *testing.T) {
	q := newTaskQueue()
	q.enqueue(func() {})
	q.enqueue(func() {})
	assert.Equal(t, 2, q.close())

	select {
	case _, open := <-q.wait():
		assert.False(t, open, "close must be visible on the first receive")
	default:
		t.Fatal("wait channel should be closed")
	}
}

func TestRuntimeMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	m, err := newEngineMetrics(registry)
	assert.NoError(t, err)
	assert.NotNil(t, m)
	m.recordDeploy(true, 0.01)
	m.recordDelivery("delivered")

	// A second runtime on the same registry runs without metrics.
	_, err = newEngineMetrics(registry)
	assert.Error(t, err)

	var disabled *engineMetrics
	disabled.recordDeploy(false, 1)
	disabled.setLiveNodes(1, 1)

	none, err := newEngineMetrics(nil)
	assert.NoError(t, err)
	assert.Nil(t, none)
}
