package component

import (
	"log/slog"
	"time"
)

// LogLevel is the severity of a node log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Valid reports whether the level is one of the known levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// SlogLevel maps the level onto slog.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is one line of node output as shown in the editor log panel.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	NodeID    string    `json:"nodeId,omitempty"`
	NodeType  string    `json:"nodeType,omitempty"`
	NodeName  string    `json:"nodeName,omitempty"`
	FlowID    string    `json:"flowId,omitempty"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
}

// Attrs returns the entry's identity as slog attributes.
func (e LogEntry) Attrs() []any {
	attrs := []any{"node_id", e.NodeID, "node_type", e.NodeType}
	if e.FlowID != "" {
		attrs = append(attrs, "flow_id", e.FlowID)
	}
	return attrs
}
