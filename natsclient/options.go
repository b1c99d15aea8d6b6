package natsclient

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semflow/metric"
)

// settings is everything a ClientOption can change.
type settings struct {
	logger *slog.Logger

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	clientName string
	username   string
	password   string
	token      string

	connectedGauge prometheus.Gauge
	onDisconnect   func(error)
	onReconnect    func()
}

func defaultSettings() settings {
	return settings{
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}
}

// natsOptions translates the settings into nats.Connect options.
func (s settings) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(s.maxReconnects),
		nats.ReconnectWait(s.reconnectWait),
		nats.PingInterval(s.pingInterval),
		nats.Timeout(s.timeout),
		nats.DrainTimeout(s.drainTimeout),
	}
	if s.clientName != "" {
		opts = append(opts, nats.Name(s.clientName))
	}
	if s.username != "" && s.password != "" {
		opts = append(opts, nats.UserInfo(s.username, s.password))
	}
	if s.token != "" {
		opts = append(opts, nats.Token(s.token))
	}
	return opts
}

// ClientOption configures a Client. An option that returns an error makes
// NewClient fail with an invalid error.
type ClientOption func(*settings) error

func set(fn func(*settings)) ClientOption {
	return func(s *settings) error {
		fn(s)
		return nil
	}
}

// WithMaxReconnects sets the reconnect budget; -1 never gives up.
func WithMaxReconnects(n int) ClientOption {
	return set(func(s *settings) { s.maxReconnects = n })
}

// WithReconnectWait sets the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(s *settings) error {
		if d < 0 {
			return errors.New("reconnect wait cannot be negative")
		}
		s.reconnectWait = d
		return nil
	}
}

// WithTimeout sets the dial timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(s *settings) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		s.timeout = d
		return nil
	}
}

// WithLogger replaces slog.Default. Nil is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return set(func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithName sets the client name the server shows in its connection list.
func WithName(name string) ClientOption {
	return set(func(s *settings) { s.clientName = name })
}

// WithCredentials authenticates with user and password. Both must be set.
func WithCredentials(username, password string) ClientOption {
	return set(func(s *settings) { s.username, s.password = username, password })
}

func WithToken(token string) ClientOption {
	return set(func(s *settings) { s.token = token })
}

// WithDisconnectCallback and WithReconnectCallback observe connection
// changes after the client's own bookkeeping.
func WithDisconnectCallback(fn func(error)) ClientOption {
	return set(func(s *settings) { s.onDisconnect = fn })
}

func WithReconnectCallback(fn func()) ClientOption {
	return set(func(s *settings) { s.onReconnect = fn })
}

// WithMetrics drives the registry's NATS connected gauge.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return set(func(s *settings) {
		if registry != nil {
			s.connectedGauge = registry.CoreMetrics().NATSConnected
		}
	})
}
