package component

import (
	"context"
	"log/slog"

	"github.com/c360/semflow/message"
	"github.com/c360/semflow/pkg/events"
)

// Node is a deployed instance's handle on the runtime. Every method is safe
// to call from any goroutine.
type Node interface {
	ID() string
	Type() string
	Name() string
	// FlowID is the id of the flow tab holding the node; empty for config nodes.
	FlowID() string
	// Config is the node's property map. Treat it as read-only.
	Config() map[string]any
	Wires() [][]string

	// Send routes messages along the node's wires. It accepts a message,
	// a flat list of messages for output 0, Outputs, or a []any whose
	// entries address each output (nil for an empty output).
	Send(v any)

	Log(text string)
	Warn(text string)
	// Error reports a failure, sets a sticky red status and routes an
	// error record to catch nodes. origin and err may be nil.
	Error(text string, origin message.Msg, err error)
	Status(s Status)
	Debug(ev DebugOutput)
	Download(ev DownloadOutput)

	Context() ContextSet
	// Events is the instance-local bus, reset when the node closes.
	Events() *events.Bus
	// Shared is the runtime-wide bus.
	Shared() *events.Bus

	OnClose(fn CloseFunc)
	// Go runs fn on a new goroutine with a context cancelled when the node
	// closes. A returned error is reported via Error with origin, unless the
	// node has closed meanwhile.
	Go(origin message.Msg, fn func(ctx context.Context) error)
	// Post runs fn on the runtime loop, or drops it if the node has closed.
	Post(fn func())

	// Lookup finds another live node, typically a config node.
	Lookup(id string) (Node, bool)
	Behavior() Behavior
	Logger() *slog.Logger
	Alive() bool
}

// Outputs addresses messages per output port. A nil slot sends nothing.
type Outputs [][]message.Msg

// Status is the badge shown under a node in the editor. The zero value
// clears it.
type Status struct {
	Fill  string `json:"fill,omitempty"`
	Shape string `json:"shape,omitempty"`
	Text  string `json:"text,omitempty"`
}

// IsZero reports whether the status clears the badge.
func (s Status) IsZero() bool {
	return s == Status{}
}

// DebugOutput is what a debug node reports for one message.
type DebugOutput struct {
	Property string `json:"property,omitempty"`
	Value    any    `json:"value"`
	Topic    string `json:"topic,omitempty"`
	MsgID    string `json:"msgId,omitempty"`
}

// DownloadOutput asks connected editors to save a file.
type DownloadOutput struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"` // "" or "base64"
}

// ContextStore is a key/value scope.
type ContextStore interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Keys() []string
}

// ContextSet groups the three scopes visible to a node: its own store,
// the store shared by its flow tab, and the global store.
type ContextSet struct {
	Node   ContextStore
	Flow   ContextStore
	Global ContextStore
}

// ExternalMessage is published on the shared bus when the automation bridge
// injects a message into the flows.
type ExternalMessage struct {
	Payload any
	Topic   string
}

// OutboundMessage is published on the shared bus by nodes that hand
// messages to the automation bridge.
type OutboundMessage struct {
	NodeID string
	Msg    message.Msg
}
