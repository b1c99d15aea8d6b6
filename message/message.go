// Package message defines the flow message type and the helpers every node
// uses on it: id stamping, deep cloning and dotted property paths.
package message

import (
	"github.com/google/uuid"
)

// Reserved message keys.
const (
	KeyID      = "_msgid"
	KeyPayload = "payload"
	KeyTopic   = "topic"
	KeyError   = "error"
)

// Msg is a flow message: a mutable property bag. Messages arriving from JSON
// hold map[string]any, []any, string, float64, bool and nil values.
type Msg map[string]any

// New builds a message with the given payload and, when non-empty, topic.
func New(payload any, topic string) Msg {
	m := Msg{KeyPayload: payload}
	if topic != "" {
		m[KeyTopic] = topic
	}
	return m
}

// NewID returns a fresh message id.
func NewID() string {
	return uuid.NewString()
}

// ID returns the message id, or "" if unset.
func (m Msg) ID() string {
	id, _ := m[KeyID].(string)
	return id
}

// Payload returns msg.payload.
func (m Msg) Payload() any {
	return m[KeyPayload]
}

// Topic returns msg.topic when it is a string.
func (m Msg) Topic() string {
	t, _ := m[KeyTopic].(string)
	return t
}

// EnsureID assigns a fresh _msgid when the message has none and returns
// the id in effect.
func EnsureID(m Msg) string {
	if m == nil {
		return ""
	}
	if id := m.ID(); id != "" {
		return id
	}
	id := NewID()
	m[KeyID] = id
	return id
}

// FromMap views a plain map as a message without copying.
func FromMap(v any) (Msg, bool) {
	switch t := v.(type) {
	case Msg:
		return t, t != nil
	case map[string]any:
		return Msg(t), t != nil
	default:
		return nil, false
	}
}
