// Package natsbroker provides the nats-broker config node. One broker owns
// a NATS connection shared by every nats-in and nats-out node that names
// it, and survives redeploys while its properties are unchanged.
package natsbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/natsclient"
)

// Type is the registered node type name.
const Type = "nats-broker"

// DefaultURL is used when the node has no url property.
const DefaultURL = "nats://localhost:4222"

// Client is the part of a NATS connection flow nodes use. natsclient.Client
// satisfies it.
type Client interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, handler func(subject string, data []byte)) (func() error, error)
	Close(ctx context.Context) error
}

// Options are the broker's connection properties.
type Options struct {
	URL      string
	Name     string
	Username string
	Password string
	Token    string
	Timeout  time.Duration
	// Connection state hooks, called from the client's goroutines.
	OnDisconnect func(error)
	OnReconnect  func()
}

// Connector opens a connection. It must honor ctx.
type Connector func(ctx context.Context, opts Options) (Client, error)

// Dial is the default Connector, backed by natsclient.
func Dial(ctx context.Context, opts Options) (Client, error) {
	clientOpts := []natsclient.ClientOption{
		natsclient.WithName(opts.Name),
		natsclient.WithTimeout(opts.Timeout),
		natsclient.WithMaxReconnects(-1),
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts, natsclient.WithCredentials(opts.Username, opts.Password))
	}
	if opts.Token != "" {
		clientOpts = append(clientOpts, natsclient.WithToken(opts.Token))
	}
	if opts.OnDisconnect != nil {
		clientOpts = append(clientOpts, natsclient.WithDisconnectCallback(opts.OnDisconnect))
	}
	if opts.OnReconnect != nil {
		clientOpts = append(clientOpts, natsclient.WithReconnectCallback(opts.OnReconnect))
	}

	client, err := natsclient.NewClient(opts.URL, clientOpts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Broker is the per-instance behavior.
type Broker struct {
	node    component.Node
	opts    Options
	connect Connector

	mu     sync.Mutex
	client Client
}

var _ component.Initializer = (*Broker)(nil)

// Client returns the open connection, nil before Init completes.
func (b *Broker) Client() Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Init connects in the background; deploy waits for it before building
// the nodes that use the broker.
func (b *Broker) Init(context.Context) error {
	b.node.Go(nil, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()

		client, err := b.connect(dialCtx, b.opts)
		if err != nil {
			b.node.Status(component.Status{Fill: "red", Shape: "ring", Text: "disconnected"})
			return errors.WrapTransient(err, "nats-broker", "Init", "connect "+b.opts.URL)
		}
		if !b.node.Alive() {
			return client.Close(context.Background())
		}
		b.mu.Lock()
		b.client = client
		b.mu.Unlock()
		b.node.Status(component.Status{Fill: "green", Shape: "dot", Text: "connected"})
		return nil
	})

	b.node.OnClose(func(ctx context.Context) error {
		b.mu.Lock()
		client := b.client
		b.client = nil
		b.mu.Unlock()
		if client == nil {
			return nil
		}
		return client.Close(ctx)
	})
	return nil
}

// Factory returns a component.Factory that connects with connect.
func Factory(connect Connector) component.Factory {
	return func(n component.Node) (component.Behavior, error) {
		props := n.Config()
		b := &Broker{
			node:    n,
			connect: connect,
			opts: Options{
				URL:      config.GetString(props, "url", DefaultURL),
				Name:     config.GetString(props, "clientName", "semflow-"+n.ID()),
				Username: config.GetString(props, "username", ""),
				Password: config.GetString(props, "password", ""),
				Token:    config.GetString(props, "token", ""),
				Timeout:  time.Duration(config.GetFloat64(props, "timeout", 5) * float64(time.Second)),
			},
		}
		if b.opts.Timeout <= 0 {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: timeout must be positive", errors.ErrInvalidConfig),
				"nats-broker", "Factory", "validate timeout")
		}
		b.opts.OnDisconnect = func(error) {
			n.Status(component.Status{Fill: "red", Shape: "ring", Text: "disconnected"})
		}
		b.opts.OnReconnect = func() {
			n.Status(component.Status{Fill: "green", Shape: "dot", Text: "connected"})
		}
		return b, nil
	}
}

// Resolve finds the broker named by a node's broker property.
func Resolve(n component.Node) (Client, error) {
	id := config.GetString(n.Config(), "broker", "")
	if id == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: broker", errors.ErrMissingConfig),
			n.Type(), "Resolve", "read broker property")
	}
	peer, ok := n.Lookup(id)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: broker %s", errors.ErrNodeNotFound, id),
			n.Type(), "Resolve", "lookup broker")
	}
	b, ok := peer.Behavior().(*Broker)
	if !ok || b.Client() == nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: broker %s", errors.ErrNoConnection, id),
			n.Type(), "Resolve", "broker connection")
	}
	return b.Client(), nil
}

// Register adds the nats-broker type to reg using Dial.
func Register(reg *component.Registry) error {
	return RegisterWith(reg, Dial)
}

// RegisterWith adds the nats-broker type to reg with a custom connector.
func RegisterWith(reg *component.Registry, connect Connector) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryConfig,
		Description: "Shared NATS connection",
		Defaults:    map[string]any{"url": DefaultURL, "timeout": 5},
		Factory:     Factory(connect),
	})
}
