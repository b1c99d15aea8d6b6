package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketTransport(t *testing.T) {
	served := make(chan error, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			served <- err
			return
		}
		conn := NewConn(NewWebSocket(ws), arithmetic())
		served <- conn.Serve(context.Background())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	client := NewConn(NewWebSocket(ws, WithKeepalive(50*time.Millisecond, time.Second)), nil)
	go func() { _ = client.Serve(context.Background()) }()

	var sum int
	require.NoError(t, client.Call(testCtx(t), "add", map[string]int{"a": 20, "b": 22}, &sum))
	assert.Equal(t, 42, sum)

	// Survives a few ping rounds
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, client.Call(testCtx(t), "add", map[string]int{"a": 1, "b": 1}, &sum))
	assert.Equal(t, 2, sum)

	require.NoError(t, client.Close())

	select {
	case err := <-served:
		assert.NoError(t, err, "orderly close should end Serve cleanly")
	case <-time.After(3 * time.Second):
		t.Fatal("server Serve did not return after client close")
	}
}
