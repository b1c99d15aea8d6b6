package service

import (
	"context"
	"encoding/json"

	flowengine "github.com/c360/semflow/engine"
	"github.com/c360/semflow/mcp"
	"github.com/c360/semflow/rpc"
)

// ack is the generic success/failure reply.
type ack struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

var okAck = ack{Success: true}

type injectParams struct {
	NodeID  string          `json:"nodeId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// payload decodes the caller's payload. Absent or null selects the node's
// configured payload.
func (p injectParams) payload() (any, error) {
	if len(p.Payload) == 0 || string(p.Payload) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(p.Payload, &v); err != nil {
		return nil, rpc.ErrInvalidParams(err)
	}
	return v, nil
}

type triggerParams struct {
	NodeID string         `json:"nodeId"`
	Msg    map[string]any `json:"msg"`
}

func (fs *FlowService) editorMux() *rpc.Mux {
	mux := rpc.NewMux()

	mux.RegisterFunc("deploy", fs.handleDeploy)
	mux.RegisterFunc("inject", fs.handleInject)
	mux.RegisterFunc("trigger", fs.handleTrigger)
	mux.RegisterFunc("stop", func(ctx context.Context, _ *rpc.Request) (any, error) {
		if err := fs.runtime.Stop(ctx); err != nil {
			return nil, err
		}
		return okAck, nil
	})

	mux.RegisterFunc("connectMcp", func(ctx context.Context, req *rpc.Request) (any, error) {
		var opts mcp.Options
		if err := req.Bind(&opts); err != nil {
			return nil, err
		}
		return fs.bridge.Connect(ctx, opts)
	})
	mux.RegisterFunc("disconnectMcp", func(context.Context, *rpc.Request) (any, error) {
		fs.bridge.Disconnect()
		return fs.bridge.Status(), nil
	})
	mux.RegisterFunc("getMcpStatus", func(context.Context, *rpc.Request) (any, error) {
		return fs.bridge.Status(), nil
	})
	mux.RegisterFunc("getNodeTypes", func(context.Context, *rpc.Request) (any, error) {
		return fs.registry.Catalog(), nil
	})

	fs.registerStorage(mux)
	return mux
}

func (fs *FlowService) registerStorage(mux *rpc.Mux) {
	getters := map[string]func(context.Context) (json.RawMessage, error){
		"getFlows":       fs.store.GetFlows,
		"getCredentials": fs.store.GetCredentials,
		"getSettings":    fs.store.GetSettings,
	}
	for method, get := range getters {
		mux.RegisterFunc(method, func(ctx context.Context, _ *rpc.Request) (any, error) {
			return get(ctx)
		})
	}

	savers := map[string]func(context.Context, json.RawMessage) error{
		"saveFlows":       fs.store.SaveFlows,
		"saveCredentials": fs.store.SaveCredentials,
		"saveSettings":    fs.store.SaveSettings,
	}
	for method, save := range savers {
		mux.RegisterFunc(method, func(ctx context.Context, req *rpc.Request) (any, error) {
			if err := save(ctx, req.Params); err != nil {
				return nil, err
			}
			return okAck, nil
		})
	}
}

func (fs *FlowService) handleDeploy(ctx context.Context, req *rpc.Request) (any, error) {
	var dr flowengine.DeployRequest
	if err := req.Bind(&dr); err != nil {
		return nil, err
	}
	return fs.runtime.Deploy(ctx, dr)
}

func (fs *FlowService) handleInject(ctx context.Context, req *rpc.Request) (any, error) {
	var p injectParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	payload, err := p.payload()
	if err != nil {
		return nil, err
	}
	if err := fs.runtime.Inject(ctx, p.NodeID, payload); err != nil {
		return nil, err
	}
	return okAck, nil
}

func (fs *FlowService) handleTrigger(ctx context.Context, req *rpc.Request) (any, error) {
	var p triggerParams
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if err := fs.runtime.Trigger(ctx, p.NodeID, p.Msg); err != nil {
		return nil, err
	}
	return okAck, nil
}
