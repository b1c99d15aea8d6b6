package rpc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/c360/semflow/errors"
)

// Transport moves whole JSON documents between two endpoints. Read is only
// called from one goroutine; Write may be called concurrently. Read returns
// io.EOF when the remote side closes in an orderly way.
type Transport interface {
	Read() ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Conn is one end of a JSON-RPC channel.
type Conn struct {
	transport Transport
	handler   Handler
	logger    *slog.Logger

	nextID  atomic.Uint64
	serving atomic.Bool

	mu      sync.Mutex
	pending map[string]chan *Message
	closed  bool
	err     error

	// Notifications are handled one at a time, in arrival order, by a
	// single worker. Requests with an id run concurrently.
	inboxMu sync.Mutex
	inbox   []*Message
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates a connection over t. A nil handler rejects every incoming
// request with CodeMethodNotFound.
func NewConn(t Transport, h Handler, opts ...Option) *Conn {
	c := &Conn{
		transport: t,
		handler:   h,
		logger:    slog.Default(),
		pending:   make(map[string]chan *Message),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serve runs the read loop until the transport fails, the context ends or
// Close is called. It returns nil for an orderly shutdown.
func (c *Conn) Serve(ctx context.Context) error {
	if !c.serving.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "rpc", "Serve", "start read loop")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			c.closeWith(nil)
		case <-c.done:
		}
	}()
	go c.drainNotifications(ctx)

	for {
		data, err := c.transport.Read()
		if err != nil {
			if c.isClosed() || stderrors.Is(err, io.EOF) {
				c.closeWith(nil)
				return nil
			}
			wrapped := errors.WrapTransient(
				fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "rpc", "Serve", "read message")
			c.closeWith(wrapped)
			return wrapped
		}
		c.dispatch(ctx, data)
	}
}

// Call invokes method on the remote side and decodes the result into result,
// which may be nil to discard it. A remote failure is returned as *Error.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return errors.WrapInvalid(err, "rpc", "Call", "marshal params")
	}

	id := json.RawMessage(strconv.FormatUint(c.nextID.Add(1), 10))
	key := idKey(id)
	ch := make(chan *Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.WrapTransient(errors.ErrConnectionLost, "rpc", "Call", method)
	}
	c.pending[key] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, &Message{JSONRPC: Version, ID: id, Method: method, Params: raw}); err != nil {
		return errors.WrapTransient(err, "rpc", "Call", method)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return errors.WrapTransient(errors.ErrConnectionLost, "rpc", "Call", method)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return errors.Wrap(err, "rpc", "Call", "decode result")
			}
		}
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "rpc", "Call", method)
	}
}

// Notify sends a one-way call.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return errors.WrapInvalid(err, "rpc", "Notify", "marshal params")
	}
	if c.isClosed() {
		return errors.WrapTransient(errors.ErrConnectionLost, "rpc", "Notify", method)
	}
	return c.send(ctx, &Message{JSONRPC: Version, Method: method, Params: raw})
}

// Close shuts the connection and fails every pending call.
func (c *Conn) Close() error {
	c.closeWith(nil)
	return nil
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the transport error that ended the connection, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = err
		for key, ch := range c.pending {
			close(ch)
			delete(c.pending, key)
		}
		c.mu.Unlock()

		close(c.done)
		if cerr := c.transport.Close(); cerr != nil {
			c.logger.Debug("Transport close failed", "error", cerr)
		}
	})
}

func (c *Conn) send(ctx context.Context, m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.WrapInvalid(err, "rpc", "send", "marshal message")
	}
	return c.transport.Write(ctx, data)
}

func (c *Conn) dispatch(ctx context.Context, data []byte) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		c.logger.Debug("Dropping unparsable message", "error", err)
		c.reply(ctx, json.RawMessage("null"), nil, NewError(CodeParseError, "parse error: %v", err))
		return
	}

	switch {
	case m.IsResponse():
		c.resolve(&m)
	case m.IsRequest():
		go c.serveRequest(ctx, &m)
	case m.Method != "":
		c.enqueue(&m)
	default:
		c.logger.Debug("Dropping message without method or id")
	}
}

func (c *Conn) enqueue(m *Message) {
	c.inboxMu.Lock()
	c.inbox = append(c.inbox, m)
	c.inboxMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// drainNotifications serves queued notifications in order until the
// connection closes.
func (c *Conn) drainNotifications(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			c.inboxMu.Lock()
			if len(c.inbox) == 0 {
				c.inboxMu.Unlock()
				break
			}
			m := c.inbox[0]
			c.inbox[0] = nil
			c.inbox = c.inbox[1:]
			c.inboxMu.Unlock()
			c.serveRequest(ctx, m)
		}
	}
}

func (c *Conn) resolve(m *Message) {
	key := idKey(m.ID)

	c.mu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Response for unknown call", "id", key)
		return
	}
	ch <- m
}

func (c *Conn) serveRequest(ctx context.Context, m *Message) {
	req := &Request{
		Method:       m.Method,
		Params:       m.Params,
		Notification: !m.IsRequest(),
		Conn:         c,
	}

	result, err := c.invoke(ctx, req)
	if req.Notification {
		if err != nil {
			c.logger.Debug("Notification handler failed", "method", req.Method, "error", err)
		}
		return
	}
	c.reply(ctx, m.ID, result, err)
}

func (c *Conn) invoke(ctx context.Context, req *Request) (result any, err error) {
	if c.handler == nil {
		return nil, ErrMethodNotFound(req.Method)
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("RPC handler panicked",
				"method", req.Method, "panic", r, "stack", string(debug.Stack()))
			err = NewError(CodeInternalError, "internal error: %v", r)
		}
	}()
	return c.handler.Handle(ctx, req)
}

func (c *Conn) reply(ctx context.Context, id json.RawMessage, result any, err error) {
	resp := &Message{JSONRPC: Version, ID: id}
	if err != nil {
		resp.Error = toError(err)
	} else {
		raw, merr := json.Marshal(result)
		if merr != nil {
			resp.Error = NewError(CodeInternalError, "marshal result: %v", merr)
		} else {
			resp.Result = raw
		}
	}

	if serr := c.send(ctx, resp); serr != nil && !c.isClosed() {
		c.logger.Debug("Failed to send response", "id", idKey(id), "error", serr)
	}
}

func toError(err error) *Error {
	var rerr *Error
	if stderrors.As(err, &rerr) {
		return rerr
	}
	if errors.IsInvalid(err) {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return &Error{Code: CodeServerError, Message: err.Error()}
}
