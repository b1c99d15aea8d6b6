// Package natsout provides the nats-out node, which publishes msg.payload
// to a NATS subject.
package natsout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/connection/natsbroker"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
)

// Type is the registered node type name.
const Type = "nats-out"

// Out is the per-instance behavior. An empty subject publishes to msg.topic.
type Out struct {
	node    component.Node
	subject string
	client  natsbroker.Client
	sent    int
}

var (
	_ component.Initializer  = (*Out)(nil)
	_ component.InputHandler = (*Out)(nil)
)

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	return &Out{node: n, subject: config.GetString(n.Config(), "subject", "")}, nil
}

// Init resolves the broker connection.
func (o *Out) Init(context.Context) error {
	client, err := natsbroker.Resolve(o.node)
	if err != nil {
		o.node.Status(component.Status{Fill: "red", Shape: "ring", Text: "no broker"})
		return err
	}
	o.client = client
	return nil
}

// OnInput publishes the encoded payload.
func (o *Out) OnInput(ctx context.Context, msg message.Msg) error {
	subject := o.subject
	if subject == "" {
		subject = msg.Topic()
	}
	if subject == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: no subject or msg.topic", errors.ErrMissingConfig),
			Type, "OnInput", "resolve subject")
	}

	data, err := Encode(msg.Payload())
	if err != nil {
		return err
	}
	if err := o.client.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, Type, "OnInput", "publish "+subject)
	}
	o.sent++
	o.node.Status(component.Status{Fill: "green", Shape: "dot", Text: fmt.Sprintf("%d sent", o.sent)})
	return nil
}

// Encode renders a payload for the wire: strings and bytes as-is, anything
// else as JSON.
func Encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
				Type, "Encode", "marshal payload")
		}
		return data, nil
	}
}

// Register adds the nats-out type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryOutput,
		Description: "Publishes msg.payload to a NATS subject",
		Inputs:      1,
		Defaults:    map[string]any{"broker": "", "subject": ""},
		Factory:     New,
	})
}
