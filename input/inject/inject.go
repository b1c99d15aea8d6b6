// Package inject provides the inject node: a manual or timed message source.
package inject

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
)

// Type is the registered node type name.
const Type = "inject"

// Payload types understood by ConvertPayload.
const (
	PayloadDate   = "date"
	PayloadString = "str"
	PayloadNumber = "num"
	PayloadJSON   = "json"
	PayloadBool   = "bool"
)

// Config is the node's property set.
type Config struct {
	Payload     any
	PayloadType string
	Topic       string
	Once        bool
	OnceDelay   time.Duration
	Repeat      time.Duration
}

// DefaultConfig returns the properties of a freshly placed node.
func DefaultConfig() map[string]any {
	return map[string]any{
		"payload":     "",
		"payloadType": PayloadDate,
		"topic":       "",
		"once":        false,
		"onceDelay":   0.1,
		"repeat":      "",
	}
}

// ParseConfig reads the node's properties. Delays are seconds.
func ParseConfig(props map[string]any) (Config, error) {
	cfg := Config{
		Payload:     props["payload"],
		PayloadType: config.GetString(props, "payloadType", PayloadDate),
		Topic:       config.GetString(props, "topic", ""),
		Once:        config.GetBool(props, "once", false),
		OnceDelay:   seconds(config.GetFloat64(props, "onceDelay", 0.1)),
		Repeat:      seconds(config.GetFloat64(props, "repeat", 0)),
	}
	if cfg.Repeat < 0 || cfg.OnceDelay < 0 {
		return Config{}, errors.WrapInvalid(fmt.Errorf("%w: negative interval", errors.ErrInvalidConfig),
			"inject", "ParseConfig", "validate intervals")
	}
	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ConvertPayload turns a configured payload into the value a message
// carries. Unknown types pass the payload through.
func ConvertPayload(payloadType string, raw any) any {
	switch payloadType {
	case PayloadDate:
		return time.Now().UnixMilli()
	case PayloadString:
		return raw
	case PayloadNumber:
		switch v := raw.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return 0.0
	case PayloadJSON:
		s, ok := raw.(string)
		if !ok {
			if raw != nil {
				return raw
			}
			return map[string]any{}
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return map[string]any{}
		}
		return v
	case PayloadBool:
		if b, ok := raw.(bool); ok {
			return b
		}
		return raw == "true"
	default:
		return raw
	}
}

// Inject is the per-instance behavior.
type Inject struct {
	node component.Node
	cfg  Config
}

var (
	_ component.Injector     = (*Inject)(nil)
	_ component.InputHandler = (*Inject)(nil)
	_ component.Starter      = (*Inject)(nil)
)

// New builds the behavior for n.
func New(n component.Node) (component.Behavior, error) {
	cfg, err := ParseConfig(n.Config())
	if err != nil {
		return nil, err
	}
	return &Inject{node: n, cfg: cfg}, nil
}

// InjectMessage implements component.Injector. A nil payload selects the
// configured payload, converted by its payload type.
func (i *Inject) InjectMessage(payload any) message.Msg {
	if payload == nil {
		payload = ConvertPayload(i.cfg.PayloadType, message.CloneValue(i.cfg.Payload))
	}
	return message.New(payload, i.cfg.Topic)
}

// OnInput sends the injected message on output 0.
func (i *Inject) OnInput(_ context.Context, msg message.Msg) error {
	i.node.Send(msg)
	return nil
}

// Start arms the once and repeat timers.
func (i *Inject) Start(context.Context) {
	if i.cfg.Once {
		i.node.Go(nil, func(ctx context.Context) error {
			timer := time.NewTimer(i.cfg.OnceDelay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
				i.node.Post(i.fire)
			}
			return nil
		})
	}

	if i.cfg.Repeat > 0 {
		i.node.Go(nil, func(ctx context.Context) error {
			ticker := time.NewTicker(i.cfg.Repeat)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					i.node.Post(i.fire)
				}
			}
		})
	}
}

// fire runs on the runtime loop.
func (i *Inject) fire() {
	i.node.Send(i.InjectMessage(nil))
}

// Register adds the inject type to reg.
func Register(reg *component.Registry) error {
	return reg.Register(component.Registration{
		Type:        Type,
		Category:    component.CategoryInput,
		Description: "Injects a message manually, once after deploy or on an interval",
		Inputs:      0,
		Outputs:     1,
		Defaults:    DefaultConfig(),
		Factory:     New,
	})
}
