package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/pkg/retry"
	"github.com/c360/semflow/rpc"
)

// State is the bridge connection state.
type State string

// Connection states.
const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Registration methods called on the bridge after dialing.
const (
	MethodRegisterDevice = "registerDevice"
	MethodRegisterClient = "registerClient"
)

// DefaultReconnectDelay is used when Options leaves the delay unset.
const DefaultReconnectDelay = 5 * time.Second

const registerTimeout = 10 * time.Second

// Options describes one bridge session.
type Options struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`

	// ReconnectDelayMs is the fixed delay between reconnect attempts.
	ReconnectDelayMs int64 `json:"reconnectDelay,omitempty"`
}

func (o Options) reconnectDelay() time.Duration {
	if o.ReconnectDelayMs <= 0 {
		return DefaultReconnectDelay
	}
	return time.Duration(o.ReconnectDelayMs) * time.Millisecond
}

func (o Options) header() http.Header {
	if o.Token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+o.Token)
	return h
}

// Status reports the bridge state. It doubles as the mcpStatus notification.
type Status struct {
	Status State  `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

type registerDevice struct {
	DeviceID  string   `json:"deviceId"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	NodeTypes []string `json:"nodeTypes"`
}

type registerClient struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithMetrics records dial attempts and connection state.
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithStatusHandler receives every status change of the current session.
func WithStatusHandler(fn func(Status)) Option {
	return func(b *Bridge) { b.onStatus = fn }
}

// WithIdentity sets the device identity sent on registration.
func WithIdentity(deviceID, name, version string) Option {
	return func(b *Bridge) {
		if deviceID != "" {
			b.deviceID = deviceID
		}
		if name != "" {
			b.name = name
		}
		b.version = version
	}
}

// WithNodeTypes supplies the node-type catalog advertised on registration.
func WithNodeTypes(fn func() []string) Option {
	return func(b *Bridge) { b.nodeTypes = fn }
}

// Bridge owns the automation bridge connection.
type Bridge struct {
	handler   rpc.Handler
	dialer    Dialer
	logger    *slog.Logger
	metrics   *metric.Metrics
	onStatus  func(Status)
	nodeTypes func() []string

	deviceID string
	name     string
	version  string

	mu      sync.Mutex
	current *session
	status  Status
	nextID  uint64
}

type session struct {
	id     uint64
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// settled is closed after the first attempt connects or fails.
	settled     chan struct{}
	settledOnce sync.Once

	conn *rpc.Conn
}

func (s *session) settle() {
	s.settledOnce.Do(func() { close(s.settled) })
}

// NewBridge creates a disconnected bridge whose incoming calls are served by
// handler.
func NewBridge(handler rpc.Handler, opts ...Option) *Bridge {
	b := &Bridge{
		handler:  handler,
		dialer:   NewWebSocketDialer(),
		logger:   slog.Default(),
		deviceID: uuid.NewString(),
		name:     "semflow",
		status:   Status{Status: StateDisconnected},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DeviceID returns the identity used for registration.
func (b *Bridge) DeviceID() string {
	return b.deviceID
}

// Connect replaces any existing session with one for o and waits until the
// first attempt has either connected or failed. Reconnects continue in the
// background after a failure.
func (b *Bridge) Connect(ctx context.Context, o Options) (Status, error) {
	if err := validate(o); err != nil {
		return b.Status(), err
	}

	sctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	old := b.current
	b.nextID++
	s := &session{
		id:      b.nextID,
		opts:    o,
		ctx:     sctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		settled: make(chan struct{}),
	}
	b.current = s
	b.mu.Unlock()

	if old != nil {
		b.logger.Info("Replacing bridge session", "old_session", old.id, "session", s.id)
		b.stop(old)
	}

	go b.run(s)

	select {
	case <-s.settled:
	case <-s.done:
	case <-ctx.Done():
	}
	return b.Status(), nil
}

// Disconnect ends the current session, if any.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	s := b.current
	b.current = nil
	if s != nil {
		b.status = Status{Status: StateDisconnected, URL: s.opts.URL}
	}
	st := b.status
	b.mu.Unlock()

	if s == nil {
		return
	}
	b.stop(s)
	b.logger.Info("Bridge disconnected", "url", s.opts.URL)
	b.emit(st)
}

// Close ends the current session and waits for its goroutine.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	s := b.current
	b.mu.Unlock()

	b.Disconnect()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "mcp", "Close", "wait for session")
	}
}

// Status returns the state of the current session.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Connected reports whether a registered connection is up.
func (b *Bridge) Connected() bool {
	return b.Status().Status == StateConnected
}

// Call invokes method on the bridge.
func (b *Bridge) Call(ctx context.Context, method string, params, result any) error {
	b.mu.Lock()
	var conn *rpc.Conn
	if b.current != nil {
		conn = b.current.conn
	}
	b.mu.Unlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "mcp", "Call", method)
	}
	return conn.Call(ctx, method, params, result)
}

func validate(o Options) error {
	if o.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "mcp", "Connect", "url is required")
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return errors.WrapInvalid(err, "mcp", "Connect", "parse url")
	}
	switch u.Scheme {
	case "ws", "wss":
		return nil
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: scheme %q", errors.ErrInvalidConfig, u.Scheme), "mcp", "Connect", "check url")
	}
}

func (b *Bridge) stop(s *session) {
	s.cancel()
	b.mu.Lock()
	conn := s.conn
	b.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (b *Bridge) run(s *session) {
	defer close(s.done)
	defer s.settle()

	logger := b.logger.With("session", s.id, "url", s.opts.URL)

	cfg := retry.Fixed(s.opts.reconnectDelay())
	cfg.OnRetry = func(attempt int, err error, next time.Duration) {
		logger.Warn("Bridge connection failed, retrying", "attempt", attempt, "error", err, "retry_in", next)
	}

	_ = retry.Do(s.ctx, cfg, func() error {
		err := b.attempt(s, logger)
		if s.ctx.Err() != nil {
			return retry.NonRetryable(s.ctx.Err())
		}
		return err
	})
}

// attempt dials, registers and serves one connection. It always returns a
// non-nil error so the retry loop reconnects.
func (b *Bridge) attempt(s *session, logger *slog.Logger) error {
	b.setStatus(s, Status{Status: StateConnecting, URL: s.opts.URL})

	t, err := b.dialer.Dial(s.ctx, s.opts.URL, s.opts.header())
	if err != nil {
		b.recordDial("failure")
		b.fail(s, err)
		return errors.WrapTransient(err, "mcp", "attempt", "dial")
	}

	conn := rpc.NewConn(t, b.handler, rpc.WithLogger(logger))
	if !b.bind(s, conn) {
		_ = conn.Close()
		return retry.NonRetryable(context.Canceled)
	}

	served := make(chan error, 1)
	go func() { served <- conn.Serve(s.ctx) }()

	if err := b.register(s.ctx, conn, logger); err != nil {
		_ = conn.Close()
		<-served
		b.unbind(s, conn)
		b.recordDial("failure")
		b.fail(s, err)
		return err
	}

	b.recordDial("success")
	b.setConnected(true)
	b.setStatus(s, Status{Status: StateConnected, URL: s.opts.URL})
	logger.Info("Bridge connected", "device_id", b.deviceID)

	err = <-served
	if b.unbind(s, conn) {
		b.setConnected(false)
	}

	if err == nil {
		err = errors.ErrConnectionLost
	}
	if s.ctx.Err() == nil {
		b.fail(s, err)
	}
	return errors.WrapTransient(err, "mcp", "attempt", "serve")
}

func (b *Bridge) register(ctx context.Context, conn *rpc.Conn, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	nodeTypes := []string{}
	if b.nodeTypes != nil {
		nodeTypes = b.nodeTypes()
	}

	var ack json.RawMessage
	err := conn.Call(ctx, MethodRegisterDevice, registerDevice{
		DeviceID:  b.deviceID,
		Name:      b.name,
		Version:   b.version,
		NodeTypes: nodeTypes,
	}, &ack)
	if err == nil {
		return nil
	}

	var rerr *rpc.Error
	if !stderrors.As(err, &rerr) {
		return errors.WrapTransient(err, "mcp", "register", MethodRegisterDevice)
	}

	logger.Info("registerDevice rejected, falling back to registerClient", "error", rerr.Message)
	if err := conn.Call(ctx, MethodRegisterClient, registerClient{ClientID: b.deviceID, Name: b.name}, &ack); err != nil {
		return errors.WrapTransient(err, "mcp", "register", MethodRegisterClient)
	}
	return nil
}

// bind installs conn on s. It fails when s is no longer current.
func (b *Bridge) bind(s *session, conn *rpc.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != s || s.ctx.Err() != nil {
		return false
	}
	s.conn = conn
	return true
}

// unbind clears conn only if it is still the session's connection. It
// reports whether s is still the current session.
func (b *Bridge) unbind(s *session, conn *rpc.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	return b.current == s
}

func (b *Bridge) fail(s *session, err error) {
	b.setStatus(s, Status{Status: StateError, URL: s.opts.URL, Error: err.Error()})
}

// setStatus records st if s is still the current session. Events from
// superseded sessions are dropped.
func (b *Bridge) setStatus(s *session, st Status) {
	b.mu.Lock()
	if b.current != s {
		b.mu.Unlock()
		b.logger.Debug("Ignoring status from stale session", "session", s.id, "status", st.Status)
		return
	}
	b.status = st
	b.mu.Unlock()

	if st.Status == StateConnected || st.Status == StateError {
		s.settle()
	}
	b.emit(st)
}

func (b *Bridge) emit(st Status) {
	if b.onStatus != nil {
		b.onStatus(st)
	}
}

func (b *Bridge) recordDial(result string) {
	if b.metrics != nil {
		b.metrics.BridgeDials.WithLabelValues(result).Inc()
	}
}

func (b *Bridge) setConnected(up bool) {
	if b.metrics == nil {
		return
	}
	if up {
		b.metrics.BridgeConnected.Set(1)
	} else {
		b.metrics.BridgeConnected.Set(0)
	}
}
