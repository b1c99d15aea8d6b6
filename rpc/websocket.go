package rpc

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Keepalive defaults.
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 60 * time.Second
)

// WebSocket adapts a gorilla websocket connection to Transport. Messages are
// sent as text frames.
type WebSocket struct {
	conn *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration
	pingInterval time.Duration
	pongWait     time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// WebSocketOption configures a WebSocket transport.
type WebSocketOption func(*WebSocket)

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(w *WebSocket) { w.writeTimeout = d }
}

// WithKeepalive sets the ping interval and how long to wait for a pong
// before the read side gives up. A zero interval disables pings.
func WithKeepalive(pingInterval, pongWait time.Duration) WebSocketOption {
	return func(w *WebSocket) {
		w.pingInterval = pingInterval
		w.pongWait = pongWait
	}
}

// NewWebSocket wraps conn and starts its ping loop.
func NewWebSocket(conn *websocket.Conn, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		pongWait:     DefaultPongWait,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(w.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(w.pongWait))
		})
	}
	if w.pingInterval > 0 {
		go w.pingLoop()
	}
	return w
}

func (w *WebSocket) pingLoop() {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.writeTimeout)
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// Read returns the next data frame. Control frames are handled by gorilla.
func (w *WebSocket) Read() ([]byte, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Write sends data as one text frame. Gorilla allows one concurrent writer,
// so writes are serialized.
func (w *WebSocket) Write(ctx context.Context, data []byte) error {
	select {
	case <-w.done:
		return stderrors.New("websocket closed")
	default:
	}

	deadline := time.Now().Add(w.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_ = w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the socket.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = w.conn.Close()
	})
	return err
}
