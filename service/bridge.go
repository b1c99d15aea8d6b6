package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/pkg/events"
	"github.com/c360/semflow/rpc"
)

// Canvas operations only the editor can perform.
var proxiedMethods = []string{
	"getState",
	"getFlows",
	"createFlow",
	"addNode",
	"addNodes",
	"updateNode",
	"deleteNode",
	"connectNodes",
	"disconnectNodes",
	"deploy",
	"getCanvasSvg",
}

const noEditorMessage = "no editor connected"

type limitParams struct {
	Limit int `json:"limit"`
}

type logsParams struct {
	Limit   int    `json:"limit"`
	Context string `json:"context"`
	Level   string `json:"level"`
}

type messagesParams struct {
	Limit int  `json:"limit"`
	Clear bool `json:"clear"`
}

type sendParams struct {
	Payload any    `json:"payload"`
	Topic   string `json:"topic"`
}

type detailsParams struct {
	Type string `json:"type"`
}

// injectNode describes an inject node for the bridge.
type injectNode struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	FlowID      string `json:"z,omitempty"`
	Payload     any    `json:"payload,omitempty"`
	PayloadType string `json:"payloadType,omitempty"`
	Topic       string `json:"topic,omitempty"`
}

func (fs *FlowService) bridgeMux() *rpc.Mux {
	mux := rpc.NewMux()

	for _, method := range proxiedMethods {
		mux.RegisterFunc(method, fs.proxy)
	}

	mux.RegisterFunc("getDebugOutput", func(_ context.Context, req *rpc.Request) (any, error) {
		var p limitParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return nonNil(fs.debug.Recent(p.Limit)), nil
	})
	mux.RegisterFunc("getErrors", func(_ context.Context, req *rpc.Request) (any, error) {
		var p limitParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return nonNil(fs.errs.Recent(p.Limit)), nil
	})
	mux.RegisterFunc("getLogs", fs.handleGetLogs)
	mux.RegisterFunc("clearLogs", fs.clearer(fs.logs.Clear))
	mux.RegisterFunc("clearDebug", fs.clearer(fs.debug.Clear))
	mux.RegisterFunc("clearErrors", fs.clearer(fs.errs.Clear))

	mux.RegisterFunc("getInjectNodes", func(context.Context, *rpc.Request) (any, error) {
		return fs.injectNodes(), nil
	})
	mux.RegisterFunc("inject", fs.handleInject)
	mux.RegisterFunc("trigger", fs.handleTrigger)

	mux.RegisterFunc("getNodeStatuses", func(context.Context, *rpc.Request) (any, error) {
		return fs.nodeStatuses(), nil
	})
	mux.RegisterFunc("getNodeDetails", fs.handleNodeDetails)
	mux.RegisterFunc("getMessages", fs.handleGetMessages)
	mux.RegisterFunc("sendMessage", fs.handleSendMessage)

	return mux
}

// proxy forwards a canvas call to the first editor.
func (fs *FlowService) proxy(ctx context.Context, req *rpc.Request) (any, error) {
	var result json.RawMessage
	err := fs.hub.Call(ctx, req.Method, req.Params, &result)
	if err == nil {
		if len(result) == 0 {
			return okAck, nil
		}
		return result, nil
	}

	if stderrors.Is(err, errors.ErrNoPeer) {
		return ack{Success: false, Errors: []string{noEditorMessage}}, nil
	}
	var rerr *rpc.Error
	if stderrors.As(err, &rerr) {
		return nil, rerr
	}
	fs.logger.Warn("Proxied bridge call failed", "method", req.Method, "error", err)
	return ack{Success: false, Errors: []string{err.Error()}}, nil
}

func (fs *FlowService) clearer(clear func()) rpc.HandlerFunc {
	return func(context.Context, *rpc.Request) (any, error) {
		clear()
		return okAck, nil
	}
}

func (fs *FlowService) handleGetLogs(_ context.Context, req *rpc.Request) (any, error) {
	var p logsParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return filterLogs(fs.logs.Snapshot(), p), nil
}

// filterLogs keeps entries matching level exactly and whose node id equals,
// or whose text contains, the context filter. The newest limit entries are
// returned, oldest first.
func filterLogs(entries []component.LogEntry, p logsParams) []component.LogEntry {
	out := make([]component.LogEntry, 0, len(entries))
	for _, e := range entries {
		if p.Level != "" && string(e.Level) != p.Level {
			continue
		}
		if p.Context != "" && e.NodeID != p.Context && !strings.Contains(e.Message, p.Context) {
			continue
		}
		out = append(out, e)
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[len(out)-p.Limit:]
	}
	return out
}

func (fs *FlowService) injectNodes() []injectNode {
	out := []injectNode{}
	for _, n := range fs.runtime.Nodes() {
		if _, ok := n.Behavior().(component.Injector); !ok {
			continue
		}
		cfg := n.Config()
		payloadType, _ := cfg["payloadType"].(string)
		topic, _ := cfg["topic"].(string)
		out = append(out, injectNode{
			ID:          n.ID(),
			Name:        n.Name(),
			Type:        n.Type(),
			FlowID:      n.FlowID(),
			Payload:     cfg["payload"],
			PayloadType: payloadType,
			Topic:       topic,
		})
	}
	return out
}

func (fs *FlowService) handleNodeDetails(_ context.Context, req *rpc.Request) (any, error) {
	var p detailsParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if p.Type == "" {
		return fs.registry.Catalog(), nil
	}
	reg, ok := fs.registry.Lookup(p.Type)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownNodeType, p.Type),
			"FlowService", "getNodeDetails", "lookup type")
	}
	return reg.Info(), nil
}

// handleGetMessages returns queued outbound messages oldest first. With
// clear set they are removed from the queue.
func (fs *FlowService) handleGetMessages(_ context.Context, req *rpc.Request) (any, error) {
	var p messagesParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	if p.Clear {
		limit := p.Limit
		if limit <= 0 {
			limit = fs.messages.Capacity()
		}
		return nonNil(fs.messages.ReadBatch(limit)), nil
	}

	queued := fs.messages.Snapshot()
	if p.Limit > 0 && len(queued) > p.Limit {
		queued = queued[:p.Limit]
	}
	return nonNil(queued), nil
}

func (fs *FlowService) handleSendMessage(_ context.Context, req *rpc.Request) (any, error) {
	var p sendParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	delivered := events.Publish(fs.runtime.Shared(), component.ExternalMessage{Payload: p.Payload, Topic: p.Topic})
	return map[string]any{"success": true, "delivered": delivered}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
