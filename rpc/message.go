package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only protocol version spoken.
const Version = "2.0"

// Standard and implementation-defined error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Message is the wire envelope for requests, notifications and responses.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequest reports whether m expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && hasID(m.ID)
}

// IsNotification reports whether m is a one-way call.
func (m *Message) IsNotification() bool {
	return m.Method != "" && !hasID(m.ID)
}

// IsResponse reports whether m answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && hasID(m.ID)
}

func hasID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// idKey normalizes a raw id for map lookups.
func idKey(id json.RawMessage) string {
	return string(bytes.TrimSpace(id))
}

// Error is a JSON-RPC error object. It satisfies the error interface so
// handlers can return it directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError creates an error with the given code.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrMethodNotFound builds the standard error for an unknown method.
func ErrMethodNotFound(method string) *Error {
	return NewError(CodeMethodNotFound, "method not found: %s", method)
}

// ErrInvalidParams builds the standard error for undecodable params.
func ErrInvalidParams(err error) *Error {
	return NewError(CodeInvalidParams, "invalid params: %v", err)
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
