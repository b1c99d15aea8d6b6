package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/semflow/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "SEMFLOW"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment, then validates.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("failed to load %s: %w", path, err),
				"Loader", "Load", "read layer")
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadRaw reads one layer as a generic map. YAML and JSON are told apart
// by extension.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	}
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies PREFIX_SECTION_FIELD environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"SERVER_NAME":         &cfg.Server.Name,
		"SERVER_ADDR":         &cfg.Server.Addr,
		"SERVER_METRICS_ADDR": &cfg.Server.MetricsAddr,
		"NATS_USERNAME":       &cfg.NATS.Username,
		"NATS_PASSWORD":       &cfg.NATS.Password,
		"NATS_TOKEN":          &cfg.NATS.Token,
		"STORAGE_MODE":        &cfg.Storage.Mode,
		"STORAGE_BUCKET":      &cfg.Storage.Bucket,
		"MCP_URL":             &cfg.MCP.URL,
		"MCP_TOKEN":           &cfg.MCP.Token,
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_FORMAT":          &cfg.Log.Format,
	}
	for suffix, dst := range strs {
		if val, ok := l.env(suffix); ok {
			if err := validateEnvVar(l.envPrefix+"_"+suffix, val); err != nil {
				return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "validate "+suffix)
			}
			*dst = val
		}
	}

	if val, ok := l.env("NATS_URLS"); ok {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val, ok := l.env("SERVER_DEPLOY_ON_START"); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "parse SERVER_DEPLOY_ON_START")
		}
		cfg.Server.DeployOnStart = b
	}
	if val, ok := l.env("MCP_RECONNECT_DELAY_MS"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "parse MCP_RECONNECT_DELAY_MS")
		}
		cfg.MCP.ReconnectDelay = n
	}
	return nil
}

func (l *Loader) env(suffix string) (string, bool) {
	val, ok := l.lookupEnv(l.envPrefix + "_" + suffix)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}
