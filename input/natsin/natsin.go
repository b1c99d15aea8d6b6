// Package natsin provides the nats-in node, which emits a message for every
// NATS message received on a subject.
package natsin

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
const Type = "nats-in"

// Payload decodings.
const (
	DataTypeAuto   = "auto"
	DataTypeJSON   = "json"
	DataTypeString = "utf8"
	DataTypeBuffer = "buffer"
)

// In is the per-instance behavior.
type In struct {
	node     component.Node
	subject  string
	dataType string
}

var _ component.Initializer = (*In)(nil)

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	props := n.Config()
	in := &In{
		node:     n,
		subject:  config.GetString(props, "subject", ""),
		dataType: config.GetString(props, "datatype", DataTypeAuto),
	}
	if in.subject == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: subject", errors.ErrMissingConfig),
			Type, "New", "read subject")
	}
	switch in.dataType {
	case DataTypeAuto, DataTypeJSON, DataTypeString, DataTypeBuffer:
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: datatype %q", errors.ErrInvalidConfig, in.dataType),
			Type, "New", "validate datatype")
	}
	return in, nil
}

// Init subscribes through the node's broker.
func (i *In) Init(context.Context) error {
	client, err := natsbroker.Resolve(i.node)
	if err != nil {
		i.node.Status(component.Status{Fill: "red", Shape: "ring", Text: "no broker"})
		return err
	}
	unsubscribe, err := client.Subscribe(i.subject, i.handle)
	if err != nil {
		return errors.WrapTransient(err, Type, "Init", "subscribe "+i.subject)
	}
	i.node.OnClose(func(context.Context) error {
		return unsubscribe()
	})
	i.node.Status(component.Status{Fill: "green", Shape: "dot", Text: i.subject})
	return nil
}

// handle runs on the client's delivery goroutine.
func (i *In) handle(subject string, data []byte) {
	payload, err := Decode(i.dataType, data)
	if err != nil {
		i.node.Post(func() {
			i.node.Error("failed to decode message on "+subject, nil, err)
		})
		return
	}
	i.node.Post(func() {
		i.node.Send(message.New(payload, subject))
	})
}

// Decode converts a NATS payload. auto yields parsed JSON when data is
// valid JSON, otherwise a string.
func Decode(dataType string, data []byte) (any, error) {
	switch dataType {
	case DataTypeBuffer:
		return append([]byte(nil), data...), nil
	case DataTypeString:
		return string(data), nil
	case DataTypeJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				Type, "Decode", "parse JSON payload")
		}
		return v, nil
	default:
		var v any
		if json.Valid(data) && json.Unmarshal(data, &v) == nil {
			return v, nil
		}
		return string(data), nil
	}
}

// Register adds the nats-in type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryInput,
		Description: "Subscribes to a NATS subject",
		Outputs:     1,
		Defaults:    map[string]any{"broker": "", "subject": "", "datatype": DataTypeAuto},
		Factory:     New,
	})
}
