package peer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/pkg/buffer"
	"github.com/c360/semflow/rpc"
)

// MethodReady is sent to every peer as soon as it attaches.
const MethodReady = "ready"

// DefaultOutboxSize bounds queued notifications per peer.
const DefaultOutboxSize = 1000

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records peer counts and notification volume.
func WithMetrics(m *metric.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithOutboxSize sets the per-peer notification capacity.
func WithOutboxSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.outboxSize = n
		}
	}
}

// WithReady sets the payload builder for the ready notification.
func WithReady(fn func() any) Option {
	return func(h *Hub) { h.ready = fn }
}

// WithCheckOrigin overrides the websocket origin check. The default accepts
// any origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// Info describes a connected peer.
type Info struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connectedAt"`
	Remote      string    `json:"remote,omitempty"`
}

// Hub tracks connected editor peers.
type Hub struct {
	handler    rpc.Handler
	logger     *slog.Logger
	metrics    *metric.Metrics
	upgrader   websocket.Upgrader
	outboxSize int
	ready      func() any

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	peers []*Peer
}

// NewHub creates a hub whose peers are served by handler.
func NewHub(handler rpc.Handler, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		handler:    handler,
		logger:     slog.Default(),
		outboxSize: DefaultOutboxSize,
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Peer upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := h.attach(rpc.NewWebSocket(ws), r.RemoteAddr)
	<-p.Done()
}

// Attach serves an already established transport as a peer.
func (h *Hub) Attach(t rpc.Transport) *Peer {
	return h.attach(t, "")
}

func (h *Hub) attach(t rpc.Transport, remote string) *Peer {
	id := uuid.NewString()
	logger := h.logger.With("peer_id", id)

	p := &Peer{
		info:   Info{ID: id, ConnectedAt: time.Now(), Remote: remote},
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
	p.outbox = buffer.MustCircularBuffer[notification](h.outboxSize,
		buffer.WithOverflowPolicy[notification](buffer.DropOldest),
		buffer.WithDropCallback(func(n notification) {
			logger.Debug("Peer outbox full, dropping notification", "method", n.method)
		}),
	)
	p.conn = rpc.NewConn(t, h.handler, rpc.WithLogger(logger))

	// ready is queued before the peer is visible to Notify.
	var params any
	if h.ready != nil {
		params = h.ready()
	}
	p.enqueue(notification{method: MethodReady, params: params})

	h.mu.Lock()
	h.peers = append(h.peers, p)
	count := len(h.peers)
	h.mu.Unlock()
	h.setConnected(count)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		if err := p.conn.Serve(h.ctx); err != nil {
			logger.Info("Peer connection lost", "error", err)
		}
		h.detach(p)
	}()
	go func() {
		defer h.wg.Done()
		p.writeLoop()
	}()

	logger.Info("Peer connected", "remote", remote, "peers", count)
	return p
}

func (h *Hub) detach(p *Peer) {
	h.mu.Lock()
	for i, other := range h.peers {
		if other == p {
			h.peers = append(h.peers[:i:i], h.peers[i+1:]...)
			break
		}
	}
	count := len(h.peers)
	h.mu.Unlock()

	_ = p.outbox.Close()
	h.setConnected(count)
	p.logger.Info("Peer disconnected", "peers", count)
}

func (h *Hub) setConnected(n int) {
	if h.metrics != nil {
		h.metrics.PeersConnected.Set(float64(n))
	}
}

// Notify queues a notification for every connected peer. It never blocks.
func (h *Hub) Notify(method string, params any) {
	h.mu.RLock()
	peers := append([]*Peer(nil), h.peers...)
	h.mu.RUnlock()

	for _, p := range peers {
		p.enqueue(notification{method: method, params: params})
	}
	if h.metrics != nil && len(peers) > 0 {
		h.metrics.Notifications.WithLabelValues(method).Add(float64(len(peers)))
	}
}

// Call invokes method on the first connected peer that is still live.
func (h *Hub) Call(ctx context.Context, method string, params, result any) error {
	p := h.First()
	if p == nil {
		return errors.WrapTransient(errors.ErrNoPeer, "peer", "Call", method)
	}
	return p.Call(ctx, method, params, result)
}

// First returns the earliest attached live peer, or nil.
func (h *Hub) First() *Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, p := range h.peers {
		if p.Live() {
			return p
		}
	}
	return nil
}

// Count returns the number of connected peers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Peers describes the connected peers in attach order.
func (h *Hub) Peers() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Info, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p.info)
	}
	return out
}

// Close disconnects every peer and waits for their goroutines.
func (h *Hub) Close(ctx context.Context) error {
	h.cancel()

	h.mu.RLock()
	peers := append([]*Peer(nil), h.peers...)
	h.mu.RUnlock()
	for _, p := range peers {
		_ = p.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "peer", "Close", "wait for peers")
	}
}
