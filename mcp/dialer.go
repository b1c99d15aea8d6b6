package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/semflow/rpc"
)

// Dialer opens a transport to the bridge.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (rpc.Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string, header http.Header) (rpc.Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string, header http.Header) (rpc.Transport, error) {
	return f(ctx, url, header)
}

// WebSocketDialer dials the bridge over gorilla websocket.
type WebSocketDialer struct {
	Dialer  *websocket.Dialer
	Options []rpc.WebSocketOption
}

// NewWebSocketDialer returns a dialer with a 45 second handshake timeout.
func NewWebSocketDialer(opts ...rpc.WebSocketOption) *WebSocketDialer {
	return &WebSocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
		Options: opts,
	}
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (rpc.Transport, error) {
	ws, resp, err := d.Dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return rpc.NewWebSocket(ws, d.Options...), nil
}
