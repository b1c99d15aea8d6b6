// Package natsclient manages the NATS connection shared by the flow store and
// the nats broker config node.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semflow/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Client wraps a NATS connection with status tracking and JetStream access.
type Client struct {
	settings

	url    string
	status atomic.Value // ConnectionStatus

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "validate url")
	}

	cfg := defaultSettings()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c := &Client{settings: cfg, url: url}
	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is up
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Conn returns the underlying NATS connection, or nil.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.connectedGauge != nil {
		if status == StatusConnected {
			c.connectedGauge.Set(1)
		} else {
			c.connectedGauge.Set(0)
		}
	}
}

func (c *Client) connectionOptions() []nats.Option {
	return append(c.settings.natsOptions(),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	)
}

// Connect establishes the connection, honoring ctx while dialing.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(errors.ErrShuttingDown, "Client", "Connect", "client closed")
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		// Reap a connection that lands after cancellation.
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	if res.err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(res.conn)
	if err != nil {
		c.logger.Warn("JetStream unavailable", "error", err)
	}

	c.mu.Lock()
	c.conn = res.conn
	c.js = js
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url)
	return nil
}

// WaitForConnection waits for the connection to be established
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait for connection")
		case <-ticker.C:
		}
	}
}

// Close unsubscribes, drains and closes the connection. Safe to call twice.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	c.subs = nil

	if c.conn != nil {
		drainDone := make(chan error, 1)
		conn := c.conn
		go func() { drainDone <- conn.Drain() }()

		select {
		case err := <-drainDone:
			if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(c.drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", c.drainTimeout), "Client", "Close", "drain"))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain"))
		}

		conn.Close()
		c.conn = nil
		c.js = nil
	}

	c.username, c.password, c.token = "", "", ""
	c.setStatus(StatusClosed)

	return stderrors.Join(errs...)
}

// Subscribe registers handler for subject. The returned function unsubscribes.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", fmt.Sprintf("subscribe %s", subject))
	}

	c.subs = append(c.subs, sub)
	return func() error {
		c.mu.Lock()
		for i, s := range c.subs {
			if s == sub {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			return err
		}
		return nil
	}, nil
}

// Publish publishes a message to a NATS subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	return conn.Publish(subject, data)
}

// JetStream returns the JetStream context
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

// CreateKeyValueBucket returns the named bucket, creating it if needed.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	if bucket, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		return bucket, nil
	}

	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if !stderrors.Is(err, jetstream.ErrBucketExists) && !strings.Contains(err.Error(), "already in use") {
			return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket",
				fmt.Sprintf("create bucket %s", cfg.Bucket))
		}
		// Lost a creation race; the bucket is there now.
		bucket, err = js.KeyValue(ctx, cfg.Bucket)
		if err != nil {
			return nil, errors.Wrap(err, "Client", "CreateKeyValueBucket",
				fmt.Sprintf("access existing bucket %s", cfg.Bucket))
		}
	}

	c.logger.Debug("KV bucket ready", "bucket", cfg.Bucket)
	return bucket, nil
}

// GetKeyValueBucket gets an existing KV bucket
func (c *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	return js.KeyValue(ctx, name)
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "url", c.url, "error", err)
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.logger.Info("NATS reconnected", "url", c.url)
	if c.onReconnect != nil {
		c.onReconnect()
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if !c.closed.Load() {
		c.setStatus(StatusDisconnected)
	}
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.logger.Error("NATS async error", "subject", subject, "error", err)
}
