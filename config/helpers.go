package config

import (
	"strconv"
	"strings"
)

// Node property readers. Props decoded from editor JSON hold float64 for
// every number, and text inputs often keep numbers and booleans as strings,
// so each reader accepts the string form as well. A missing key or a value
// that does not convert yields def.

// GetString returns props[key] if it is a string.
func GetString(props map[string]any, key, def string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return def
}

// GetFloat64 returns props[key] as a float64.
func GetFloat64(props map[string]any, key string, def float64) float64 {
	if f, ok := toFloat(props[key]); ok {
		return f
	}
	return def
}

// GetBool returns props[key] as a bool.
func GetBool(props map[string]any, key string, def bool) bool {
	switch v := props[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
