package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage mode constants
const (
	StorageModeMemory = "memory" // In-process only, lost on restart
	StorageModeKV     = "kv"     // NATS JetStream KV bucket
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	NATS    NATSConfig    `json:"nats" yaml:"nats"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	MCP     MCPConfig     `json:"mcp" yaml:"mcp"`
	Buffers BuffersConfig `json:"buffers" yaml:"buffers"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// ServerConfig defines the HTTP listeners and service identity
type ServerConfig struct {
	Name          string `json:"name" yaml:"name" validate:"required"`
	Addr          string `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	MetricsAddr   string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
	DeployOnStart bool   `json:"deploy_on_start" yaml:"deploy_on_start"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty" yaml:"urls,omitempty" validate:"omitempty,dive,url"`
	MaxReconnects int      `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty" validate:"gte=-1"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`
}

// URL joins the configured servers the way nats.Connect expects them.
func (c NATSConfig) URL() string {
	return strings.Join(c.URLs, ",")
}

// StorageConfig selects where flows, credentials and settings are kept
type StorageConfig struct {
	Mode    string   `json:"mode" yaml:"mode" validate:"required,oneof=memory kv"`
	Bucket  string   `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	History uint8    `json:"history,omitempty" yaml:"history,omitempty" validate:"lte=64"`
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// MCPConfig configures the automation bridge. An empty URL leaves the
// bridge idle until an editor connects it.
type MCPConfig struct {
	URL            string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Token          string `json:"token,omitempty" yaml:"token,omitempty"`
	ReconnectDelay int    `json:"reconnect_delay_ms,omitempty" yaml:"reconnect_delay_ms,omitempty" validate:"gte=0"`
}

// BuffersConfig sizes the ring buffers. Zero selects the service default.
type BuffersConfig struct {
	Debug      int `json:"debug,omitempty" yaml:"debug,omitempty" validate:"gte=0"`
	Errors     int `json:"errors,omitempty" yaml:"errors,omitempty" validate:"gte=0"`
	Logs       int `json:"logs,omitempty" yaml:"logs,omitempty" validate:"gte=0"`
	Messages   int `json:"messages,omitempty" yaml:"messages,omitempty" validate:"gte=0"`
	PeerOutbox int `json:"peer_outbox,omitempty" yaml:"peer_outbox,omitempty" validate:"gte=0"`
}

// LogConfig selects the process log handler
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=json text"`
}

// Default returns the built-in configuration every layer is merged onto.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "semflow",
			Addr: "localhost:1880",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Timeout:       Duration(5 * time.Second),
		},
		Storage: StorageConfig{
			Mode: StorageModeMemory,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Redacted returns a copy with secrets masked, for printing.
func (c *Config) Redacted() *Config {
	out := *c
	out.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	mask := func(s *string) {
		if *s != "" {
			*s = "****"
		}
	}
	mask(&out.NATS.Password)
	mask(&out.NATS.Token)
	mask(&out.MCP.Token)
	return &out
}

// Duration is a time.Duration that reads "2s", "14d" or a nanosecond count.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case nil:
		*d = 0
	case string:
		parsed, err := parseDurationWithDays(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(int64(val))
	case int:
		*d = Duration(val)
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
