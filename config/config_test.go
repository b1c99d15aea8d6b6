package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
)

func writeLayer(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "semflow", cfg.Server.Name)
	assert.Equal(t, "localhost:1880", cfg.Server.Addr)
	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadJSONLayerOverridesOnlyPresentKeys(t *testing.T) {
	path := writeLayer(t, "semflow.json", `{
		"server": {"addr": "0.0.0.0:9000"},
		"mcp": {"url": "ws://bridge:8080/ws", "reconnect_delay_ms": 250},
		"buffers": {"debug": 10}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "semflow", cfg.Server.Name, "untouched sibling keeps default")
	assert.Equal(t, "ws://bridge:8080/ws", cfg.MCP.URL)
	assert.Equal(t, 250, cfg.MCP.ReconnectDelay)
	assert.Equal(t, 10, cfg.Buffers.Debug)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
}

func TestLoadYAMLLayer(t *testing.T) {
	path := writeLayer(t, "semflow.yaml", `
server:
  name: edge
  deploy_on_start: true
nats:
  urls:
    - nats://a:4222
    - nats://b:4222
  reconnect_wait: 500ms
storage:
  mode: kv
  bucket: flows
  timeout: 1d
log:
  format: text
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "edge", cfg.Server.Name)
	assert.True(t, cfg.Server.DeployOnStart)
	assert.Equal(t, "nats://a:4222,nats://b:4222", cfg.NATS.URL())
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, StorageModeKV, cfg.Storage.Mode)
	assert.Equal(t, 24*time.Hour, cfg.Storage.Timeout.Std())
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadLayersInOrder(t *testing.T) {
	base := writeLayer(t, "base.json", `{"server": {"name": "base", "addr": "localhost:1"}}`)
	override := writeLayer(t, "override.yml", "server:\n  name: override\n")

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "override", cfg.Server.Name)
	assert.Equal(t, "localhost:1", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEMFLOW_SERVER_ADDR", "127.0.0.1:2000")
	t.Setenv("SEMFLOW_NATS_URLS", "nats://x:1,nats://y:2")
	t.Setenv("SEMFLOW_MCP_URL", "wss://bridge.example/ws")
	t.Setenv("SEMFLOW_MCP_RECONNECT_DELAY_MS", "1500")
	t.Setenv("SEMFLOW_SERVER_DEPLOY_ON_START", "true")
	t.Setenv("SEMFLOW_LOG_LEVEL", "")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2000", cfg.Server.Addr)
	assert.Equal(t, []string{"nats://x:1", "nats://y:2"}, cfg.NATS.URLs)
	assert.Equal(t, "wss://bridge.example/ws", cfg.MCP.URL)
	assert.Equal(t, 1500, cfg.MCP.ReconnectDelay)
	assert.True(t, cfg.Server.DeployOnStart)
	assert.Equal(t, "info", cfg.Log.Level, "empty value is ignored")
}

func TestEnvOverrideParseError(t *testing.T) {
	t.Setenv("SEMFLOW_MCP_RECONNECT_DELAY_MS", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		fields []string
	}{
		{"defaults", func(*Config) {}, nil},
		{"storage mode", func(c *Config) { c.Storage.Mode = "disk" }, []string{"storage.mode"}},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, []string{"log.level"}},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, []string{"server.addr"}},
		{"mcp url", func(c *Config) { c.MCP.URL = "not a url" }, []string{"mcp.url"}},
		{"negative buffer", func(c *Config) { c.Buffers.Logs = -1 }, []string{"buffers.logs"}},
		{"kv without nats", func(c *Config) {
			c.Storage.Mode = StorageModeKV
			c.NATS.URLs = nil
		}, []string{"nats.urls"}},
		{"several", func(c *Config) {
			c.Log.Format = "xml"
			c.Server.Name = ""
		}, []string{"server.name", "log.format"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))

			var verrs ValidationErrors
			require.True(t, stderrors.As(err, &verrs))
			var got []string
			for _, fe := range verrs {
				got = append(got, fe.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		path := writeLayer(t, "semflow.toml", "x = 1")
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only JSON or YAML")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "gone.json"))
		require.Error(t, err)
	})

	t.Run("too deep", func(t *testing.T) {
		deep := strings.Repeat(`{"a":`, maxJSONDepth+1) + "1" + strings.Repeat("}", maxJSONDepth+1)
		path := writeLayer(t, "deep.json", deep)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nesting too deep")
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeLayer(t, "d.json", `{"nats": {"reconnect_wait": "often"}}`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("validation disabled", func(t *testing.T) {
		path := writeLayer(t, "v.json", `{"log": {"level": "loud"}}`)
		l := NewLoader()
		l.EnableValidation(false)
		l.AddLayer(path)
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, "loud", cfg.Log.Level)
	})
}

func TestDurationParsing(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{`"2s"`, 2 * time.Second},
		{`"14d"`, 14 * 24 * time.Hour},
		{`1000`, time.Microsecond},
		{`null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			require.NoError(t, d.UnmarshalJSON([]byte(tt.in)))
			assert.Equal(t, tt.want, d.Std())
		})
	}

	var d Duration
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.NATS.Token = "secret"
	cfg.MCP.Token = "bearer"

	r := cfg.Redacted()
	assert.Equal(t, "****", r.NATS.Token)
	assert.Equal(t, "****", r.MCP.Token)
	assert.Empty(t, r.NATS.Password)
	assert.Equal(t, "secret", cfg.NATS.Token, "original untouched")
	assert.NotContains(t, r.String(), "secret")
}
