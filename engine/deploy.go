package flowengine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
)

// DeployRequest is a complete deployment: every ordinary node, every config
// node, and the ids of nodes known to be invalid.
type DeployRequest struct {
	Nodes       []component.NodeDef `json:"nodes"`
	ConfigNodes []component.NodeDef `json:"configNodes"`
	SkipIDs     []string            `json:"skipIds,omitempty"`
}

// DeployResult summarizes a deploy.
type DeployResult struct {
	NodeCount         int      `json:"nodeCount"`
	ConfigCount       int      `json:"configCount"`
	SkippedCount      int      `json:"skippedCount"`
	ReusedConfigCount int      `json:"reusedConfigCount"`
	ReusedConfigIDs   []string `json:"reusedConfigIds"`
}

// Deploy replaces the live graph with req. Config nodes whose definition is
// unchanged keep running; everything else is closed and rebuilt. A node that
// fails to build is logged and left out. The returned error is only set when
// the deploy itself could not run (cancelled context, stopped runtime).
func (r *Runtime) Deploy(ctx context.Context, req DeployRequest) (DeployResult, error) {
	r.deployMu.Lock()
	defer r.deployMu.Unlock()

	start := time.Now()
	result, err := r.deploy(ctx, req)
	r.metrics.recordDeploy(err == nil, time.Since(start).Seconds())

	if err != nil {
		r.logger.Error("Deploy failed", "error", err)
		return DeployResult{}, err
	}
	r.logger.Info("Deployed flows",
		"nodes", result.NodeCount,
		"config_nodes", result.ConfigCount,
		"skipped", result.SkippedCount,
		"reused_config", result.ReusedConfigCount,
		"duration", time.Since(start))
	return result, nil
}

func (r *Runtime) deploy(ctx context.Context, req DeployRequest) (DeployResult, error) {
	skip := make(map[string]bool, len(req.SkipIDs))
	for _, id := range req.SkipIDs {
		skip[id] = true
	}

	var (
		toBuild []component.NodeDef
		reused  []string
	)
	err := r.call(ctx, func() {
		toBuild, reused = r.teardown(ctx, req.ConfigNodes, skip)
	})
	if err != nil {
		return DeployResult{}, cancelled(err, "teardown")
	}

	built, err := r.buildPhase(ctx, configNode, toBuild)
	if err != nil {
		return DeployResult{}, cancelled(err, "build config nodes")
	}

	var ordinary []component.NodeDef
	for _, def := range req.Nodes {
		if !skip[def.ID] {
			ordinary = append(ordinary, def)
		}
	}
	nodes, err := r.buildPhase(ctx, ordinaryNode, ordinary)
	if err != nil {
		return DeployResult{}, cancelled(err, "build nodes")
	}
	built = append(built, nodes...)

	var result DeployResult
	err = r.call(ctx, func() {
		r.order = r.order[:0]
		ordered := make(map[string]bool, len(req.Nodes))
		for _, def := range req.Nodes {
			if ordered[def.ID] {
				continue
			}
			if n, ok := r.nodes[def.ID]; ok && n.Alive() {
				ordered[def.ID] = true
				r.order = append(r.order, def.ID)
			}
		}
		r.rebuildCatchIndex()

		keep := make(map[string]bool, len(req.Nodes)+len(req.ConfigNodes))
		for _, def := range req.Nodes {
			keep[def.ID] = true
		}
		for _, def := range req.ConfigNodes {
			keep[def.ID] = true
		}
		r.stores.retain(keep)

		for _, n := range built {
			n.start()
		}

		slices.Sort(reused)
		result = DeployResult{
			NodeCount:         len(r.nodes),
			ConfigCount:       len(r.configNodes),
			SkippedCount:      countSkipped(req, skip),
			ReusedConfigCount: len(reused),
			ReusedConfigIDs:   append([]string{}, reused...),
		}
		r.metrics.setLiveNodes(len(r.nodes), len(r.configNodes))
	})
	if err != nil {
		return DeployResult{}, cancelled(err, "finalize")
	}
	return result, nil
}

// teardown runs on the loop. It closes every ordinary node and every config
// node that is gone or changed, refreshes the config snapshots, and returns
// the config definitions that need building plus the ids of reused ones.
func (r *Runtime) teardown(ctx context.Context, configs []component.NodeDef, skip map[string]bool) ([]component.NodeDef, []string) {
	r.skip = skip

	incoming := make(map[string]component.NodeDef, len(configs))
	for _, def := range configs {
		incoming[def.ID] = def
	}

	for _, id := range r.order {
		if n, ok := r.nodes[id]; ok {
			n.close(ctx)
		}
	}
	for _, n := range r.Nodes() {
		n.close(ctx)
	}
	r.mu.Lock()
	r.nodes = make(map[string]*Node)
	r.mu.Unlock()
	r.order = nil
	r.catchers = nil

	for _, n := range r.ConfigNodes() {
		def, present := incoming[n.ID()]
		if present && !skip[n.ID()] && component.ConfigEqual(r.configDefs[n.ID()], def) {
			continue
		}
		n.close(ctx)
		r.unregister(n)
	}

	r.configDefs = make(map[string]component.NodeDef, len(incoming))
	var (
		toBuild []component.NodeDef
		reused  []string
		seen    = make(map[string]bool, len(configs))
	)
	for _, def := range configs {
		if skip[def.ID] || seen[def.ID] {
			continue
		}
		seen[def.ID] = true
		def = incoming[def.ID] // last definition of a duplicated id wins
		r.configDefs[def.ID] = def

		if n, ok := r.configNodes[def.ID]; ok {
			n.setName(def.Name)
			reused = append(reused, def.ID)
			continue
		}
		toBuild = append(toBuild, def)
	}
	return toBuild, reused
}

// nodeKind is the deploy phase a node was built in. It decides which table
// the node lives in, whatever its definition says.
type nodeKind int

const (
	ordinaryNode nodeKind = iota
	configNode
)

// buildPhase constructs and initializes defs on the loop, then waits for
// their asynchronous init work off the loop. Nodes that fail are closed and
// removed; the survivors are returned. A repeated id is a build failure for
// every definition after the first.
func (r *Runtime) buildPhase(ctx context.Context, kind nodeKind, defs []component.NodeDef) ([]*Node, error) {
	if len(defs) == 0 {
		return nil, nil
	}

	var inited []*Node
	err := r.call(ctx, func() {
		seen := make(map[string]bool, len(defs))
		for _, def := range defs {
			if seen[def.ID] {
				r.buildFailed(def, "construct", errors.WrapInvalid(
					fmt.Errorf("%w: %s", errors.ErrDuplicateNode, def.ID),
					"Runtime", "Deploy", "register node"))
				continue
			}
			seen[def.ID] = true

			n, err := r.construct(ctx, kind, def)
			if err != nil {
				r.buildFailed(def, "construct", err)
				continue
			}
			if err := n.init(); err != nil {
				r.buildFailed(def, "init", err)
				n.close(ctx)
				r.unregister(n)
				continue
			}
			inited = append(inited, n)
		}
	})
	if err != nil {
		return nil, err
	}

	var ready, failed []*Node
	for _, n := range inited {
		if err := n.awaitInit(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.buildFailed(n.def, "async_init", err)
			failed = append(failed, n)
			continue
		}
		ready = append(ready, n)
	}

	if len(failed) > 0 {
		err := r.call(ctx, func() {
			for _, n := range failed {
				n.close(ctx)
				r.unregister(n)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return ready, nil
}

// construct runs the type's factory on the loop and registers the instance.
func (r *Runtime) construct(ctx context.Context, kind nodeKind, def component.NodeDef) (*Node, error) {
	reg, ok := r.registry.Lookup(def.Type)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownNodeType, def.Type),
			"Runtime", "Deploy", "resolve node type")
	}

	n := newNode(r, kind, def, reg)
	var behavior component.Behavior
	err := protect(func() error {
		var err error
		behavior, err = reg.Factory(n)
		return err
	})
	if err != nil {
		n.close(ctx)
		return nil, err
	}
	if behavior == nil {
		behavior = struct{}{}
	}
	n.setBehavior(behavior)
	r.register(n)
	return n, nil
}

func (r *Runtime) buildFailed(def component.NodeDef, phase string, err error) {
	r.metrics.recordBuildFailure(phase)
	r.logger.Error("Node failed to build",
		"node_id", def.ID, "node_type", def.Type, "phase", phase, "error", err)
	r.observer.OnLog(component.LogEntry{
		Timestamp: time.Now(),
		Level:     component.LogLevelError,
		NodeID:    def.ID,
		NodeType:  def.Type,
		NodeName:  def.Name,
		FlowID:    def.Z,
		Message:   fmt.Sprintf("%s failed: %v", phase, err),
		Stack:     errors.StackOf(err),
	})
}

func countSkipped(req DeployRequest, skip map[string]bool) int {
	count := 0
	for _, def := range req.Nodes {
		if skip[def.ID] {
			count++
		}
	}
	for _, def := range req.ConfigNodes {
		if skip[def.ID] {
			count++
		}
	}
	return count
}

func cancelled(err error, phase string) error {
	if errors.Is(err, errors.ErrRuntimeStopped) {
		return errors.WrapFatal(err, "Runtime", "Deploy", phase)
	}
	return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrDeployCancelled, err), "Runtime", "Deploy", phase)
}
