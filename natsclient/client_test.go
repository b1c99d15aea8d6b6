package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/metric"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewClient("nats://localhost:4222", WithTimeout(0))
	require.Error(t, err)

	_, err = NewClient("nats://localhost:4222", WithReconnectWait(-time.Second))
	require.Error(t, err)
}

func TestClient_NotConnected(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewClient("nats://localhost:4222", WithName("unit"), WithMetrics(registry))
	require.NoError(t, err)

	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Nil(t, c.Conn())

	assert.ErrorIs(t, c.Publish(context.Background(), "a.b", []byte("x")), ErrNotConnected)

	_, err = c.Subscribe("a.b", func(string, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, c.WaitForConnection(ctx))

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusClosed, c.Status())

	err = c.Connect(context.Background())
	require.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	cases := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusClosed:         "closed",
		ConnectionStatus(42): "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func TestIsKVNotFoundError(t *testing.T) {
	assert.False(t, IsKVNotFoundError(nil))
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.ErrorIs(t, ErrKVKeyNotFound, errors.ErrKeyNotFound)
	assert.True(t, IsKVNotFoundError(errors.New("nats: key not found")))
	assert.False(t, IsKVNotFoundError(errors.New("timeout")))
}
