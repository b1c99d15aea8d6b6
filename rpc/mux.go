package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Request is an incoming call or notification.
type Request struct {
	Method string
	Params json.RawMessage

	// Notification is set when the sender does not expect a response.
	Notification bool

	// Conn is the connection the request arrived on.
	Conn *Conn
}

// Bind decodes the params into v. Absent params leave v untouched.
func (r *Request) Bind(v any) error {
	p := bytes.TrimSpace(r.Params)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(p, v); err != nil {
		return ErrInvalidParams(err)
	}
	return nil
}

// Handler serves incoming requests. The returned value is marshalled as the
// result; it is discarded for notifications.
type Handler interface {
	Handle(ctx context.Context, req *Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}

// Mux routes requests by method name.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewMux returns an empty router.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Register binds h to method, replacing any earlier registration.
func (m *Mux) Register(method string, h Handler) {
	m.mu.Lock()
	m.handlers[method] = h
	m.mu.Unlock()
}

// RegisterFunc binds f to method.
func (m *Mux) RegisterFunc(method string, f func(ctx context.Context, req *Request) (any, error)) {
	m.Register(method, HandlerFunc(f))
}

// Fallback sets the handler for methods with no registration.
func (m *Mux) Fallback(h Handler) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

// Methods lists the registered method names in sorted order.
func (m *Mux) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Handle implements Handler. Unknown methods go to the fallback, or fail
// with CodeMethodNotFound when none is set.
func (m *Mux) Handle(ctx context.Context, req *Request) (any, error) {
	m.mu.RLock()
	h, ok := m.handlers[req.Method]
	if !ok {
		h = m.fallback
	}
	m.mu.RUnlock()

	if h == nil {
		return nil, ErrMethodNotFound(req.Method)
	}
	return h.Handle(ctx, req)
}
