package flowengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/message"
	"github.com/c360/semflow/pkg/events"
	"github.com/c360/semflow/testutil"
)

type DeploySuite struct {
	suite.Suite
	reg     *component.Registry
	rt      *Runtime
	obs     *recordingObserver
	brokers *testutil.MockSet
	workers *testutil.MockSet

	mu        sync.Mutex
	initOrder []string
}

func TestDeploySuite(t *testing.T) {
	suite.Run(t, new(DeploySuite))
}

func (s *DeploySuite) SetupTest() {
	s.reg = component.NewRegistry()
	s.initOrder = nil

	recordInit := func(b *testutil.MockBehavior) {
		b.InitFunc = func(_ context.Context, n component.Node) error {
			s.mu.Lock()
			s.initOrder = append(s.initOrder, n.ID())
			s.mu.Unlock()
			return nil
		}
	}
	s.brokers = testutil.MockType(s.T(), s.reg, "broker", recordInit)
	s.workers = testutil.MockType(s.T(), s.reg, "worker", recordInit)
	s.rt, s.obs = startRuntime(s.T(), s.reg)
}

func (s *DeploySuite) deploy(req DeployRequest) DeployResult {
	return mustDeploy(s.T(), s.rt, req)
}

func broker(name, url string) component.NodeDef {
	def := testutil.ConfigNode("b1", "broker", map[string]any{"url": url})
	def.Name = name
	return def
}

func (s *DeploySuite) TestReusesUnchangedConfigNode() {
	first := s.deploy(DeployRequest{
		Nodes:       []component.NodeDef{testutil.Node("w1", "worker", "f1")},
		ConfigNodes: []component.NodeDef{broker("main", "nats://a")},
	})
	s.Empty(first.ReusedConfigIDs)
	s.Equal(1, first.ConfigCount)

	renamed := broker("renamed", "nats://a")
	renamed.X, renamed.Y = 300, 40
	second := s.deploy(DeployRequest{
		Nodes:       []component.NodeDef{testutil.Node("w1", "worker", "f1"), testutil.Node("w2", "worker", "f1")},
		ConfigNodes: []component.NodeDef{renamed},
	})

	s.Equal([]string{"b1"}, second.ReusedConfigIDs)
	s.Equal(1, second.ReusedConfigCount)
	s.Equal(1, second.ConfigCount)
	s.Equal(2, second.NodeCount)

	history := s.brokers.History("b1")
	s.Require().Len(history, 1, "config node is not rebuilt")
	s.Equal(1, history[0].InitCalls())
	s.Zero(history[0].CloseCalls())

	n, ok := s.rt.GetConfigNode("b1")
	s.Require().True(ok)
	s.Equal("renamed", n.Name(), "display fields refresh on reuse")

	s.Len(s.workers.History("w1"), 2, "ordinary nodes are always rebuilt")
	s.Equal(1, s.workers.History("w1")[0].CloseCalls())
}

func (s *DeploySuite) TestRebuildsChangedConfigNode() {
	s.deploy(DeployRequest{ConfigNodes: []component.NodeDef{broker("main", "nats://a")}})
	res := s.deploy(DeployRequest{ConfigNodes: []component.NodeDef{broker("main", "nats://b")}})

	s.Empty(res.ReusedConfigIDs)
	history := s.brokers.History("b1")
	s.Require().Len(history, 2)
	s.Equal(1, history[0].CloseCalls())
	s.Equal(1, history[1].InitCalls())
}

func (s *DeploySuite) TestClosesRemovedConfigNode() {
	s.deploy(DeployRequest{ConfigNodes: []component.NodeDef{broker("main", "nats://a")}})
	res := s.deploy(DeployRequest{})

	s.Zero(res.ConfigCount)
	s.Equal(1, s.brokers.Get("b1").CloseCalls())
	_, ok := s.rt.GetConfigNode("b1")
	s.False(ok)
}

func (s *DeploySuite) TestSkippedConfigNodeIsClosed() {
	s.deploy(DeployRequest{ConfigNodes: []component.NodeDef{broker("main", "nats://a")}})
	res := s.deploy(DeployRequest{
		ConfigNodes: []component.NodeDef{broker("main", "nats://a")},
		SkipIDs:     []string{"b1"},
	})

	s.Equal(1, res.SkippedCount)
	s.Zero(res.ConfigCount)
	s.Empty(res.ReusedConfigIDs)
	s.Equal(1, s.brokers.Get("b1").CloseCalls())
}

func (s *DeploySuite) TestConfigNodesInitFirst() {
	var resolved atomic.Bool
	s.Require().NoError(s.reg.Register(component.Registration{
		Type: "client",
		Factory: func(n component.Node) (component.Behavior, error) {
			_, ok := n.Lookup(n.Config()["broker"].(string))
			resolved.Store(ok)
			return struct{}{}, nil
		},
	}))

	s.deploy(DeployRequest{
		Nodes: []component.NodeDef{
			testutil.Node("w1", "worker", "f1"),
			testutil.WithConfig(testutil.Node("c1", "client", "f1"), map[string]any{"broker": "b1"}),
		},
		ConfigNodes: []component.NodeDef{broker("main", "nats://a")},
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Equal([]string{"b1", "w1"}, s.initOrder)
	s.True(resolved.Load(), "ordinary factories can resolve config nodes")
}

func (s *DeploySuite) TestAwaitsAsyncInit() {
	var ready atomic.Bool
	testutil.MockType(s.T(), s.reg, "slow", func(b *testutil.MockBehavior) {
		b.InitFunc = func(_ context.Context, n component.Node) error {
			n.Go(nil, func(context.Context) error {
				time.Sleep(50 * time.Millisecond)
				ready.Store(true)
				return nil
			})
			return nil
		}
	})

	res := s.deploy(DeployRequest{Nodes: []component.NodeDef{testutil.Node("s1", "slow", "f1")}})
	s.True(ready.Load())
	s.Equal(1, res.NodeCount)
}

func (s *DeploySuite) TestIsolatesNodeFailures() {
	s.Require().NoError(s.reg.Register(component.Registration{
		Type: "bad-factory",
		Factory: func(component.Node) (component.Behavior, error) {
			return nil, fmt.Errorf("missing setting")
		},
	}))
	s.Require().NoError(s.reg.Register(component.Registration{
		Type: "panicky",
		Factory: func(component.Node) (component.Behavior, error) {
			panic("factory blew up")
		},
	}))
	testutil.MockType(s.T(), s.reg, "bad-init", func(b *testutil.MockBehavior) {
		b.InitFunc = func(context.Context, component.Node) error { return fmt.Errorf("cannot init") }
	})
	asyncBad := testutil.MockType(s.T(), s.reg, "bad-async", func(b *testutil.MockBehavior) {
		b.InitFunc = func(_ context.Context, n component.Node) error {
			n.Go(nil, func(context.Context) error { return fmt.Errorf("handshake failed") })
			return nil
		}
	})

	res := s.deploy(DeployRequest{Nodes: []component.NodeDef{
		testutil.Node("u1", "no-such-type", "f1"),
		testutil.Node("bf", "bad-factory", "f1"),
		testutil.Node("p1", "panicky", "f1"),
		testutil.Node("i1", "bad-init", "f1"),
		testutil.Node("a1", "bad-async", "f1"),
		testutil.Node("ok", "worker", "f1"),
	}})

	s.Equal(1, res.NodeCount)
	_, ok := s.rt.GetNode("ok")
	s.True(ok)
	s.Equal(1, asyncBad.Get("a1").CloseCalls(), "failed nodes are closed")

	failed := map[string]bool{}
	for _, e := range s.obs.logsAt(component.LogLevelError) {
		failed[e.NodeID] = true
	}
	for _, id := range []string{"u1", "bf", "p1", "i1", "a1"} {
		s.True(failed[id], "failure of %s is logged", id)
	}
}

func (s *DeploySuite) TestDuplicateNodeIDBuildsOnce() {
	first := testutil.Node("x", "worker", "f1")
	second := testutil.Node("x", "worker", "f2")

	res := s.deploy(DeployRequest{Nodes: []component.NodeDef{first, second}})
	s.Equal(1, res.NodeCount)
	s.Require().Len(s.workers.History("x"), 1, "the repeated definition is not constructed")

	var logged bool
	for _, e := range s.obs.logsAt(component.LogLevelError) {
		if e.NodeID == "x" && e.FlowID == "f2" {
			logged = true
		}
	}
	s.True(logged, "the duplicate is reported as a build failure")

	s.deploy(DeployRequest{})
	for _, b := range s.workers.History("x") {
		s.Equal(1, b.CloseCalls(), "every built instance is closed on redeploy")
	}
	s.Empty(s.rt.Nodes())
}

func (s *DeploySuite) TestOrdinaryNodeWithoutFlowTab() {
	testutil.MockType(s.T(), s.reg, "relay", func(b *testutil.MockBehavior) {
		b.InputFunc = func(_ context.Context, n component.Node, msg message.Msg) error {
			n.Send(msg)
			return nil
		}
	})

	res := s.deploy(DeployRequest{Nodes: []component.NodeDef{
		testutil.Node("src", "relay", "f1", testutil.Out("loose")),
		testutil.Node("loose", "worker", ""),
	}})
	s.Equal(2, res.NodeCount)
	s.Zero(res.ConfigCount)

	_, ok := s.rt.GetNode("loose")
	s.True(ok)
	_, ok = s.rt.GetConfigNode("loose")
	s.False(ok)

	s.Require().NoError(s.rt.Trigger(testCtx(s.T()), "src", map[string]any{"payload": "hi"}))
	got := s.workers.WaitFor(s.T(), "loose", 1)
	s.Equal("hi", got[0]["payload"])

	s.deploy(DeployRequest{})
	s.Equal(1, s.workers.Get("loose").CloseCalls())
}

func (s *DeploySuite) TestStopForgetsConfigSnapshots() {
	s.deploy(DeployRequest{
		Nodes:       []component.NodeDef{testutil.Node("w1", "worker", "f1")},
		ConfigNodes: []component.NodeDef{broker("main", "nats://a")},
	})
	s.Require().NoError(s.rt.Stop(testCtx(s.T())))

	s.Empty(s.rt.Nodes())
	s.Empty(s.rt.ConfigNodes())
	s.Equal(1, s.brokers.Get("b1").CloseCalls())
	s.Equal(1, s.workers.Get("w1").CloseCalls())

	res := s.deploy(DeployRequest{ConfigNodes: []component.NodeDef{broker("main", "nats://a")}})
	s.Empty(res.ReusedConfigIDs)
	s.Len(s.brokers.History("b1"), 2)
}

func (s *DeploySuite) TestStartRunsAfterDeploy() {
	var started atomic.Int32
	s.Require().NoError(s.reg.Register(component.Registration{
		Type: "ticker",
		Factory: func(component.Node) (component.Behavior, error) {
			return &startRecorder{started: &started}, nil
		},
	}))

	s.deploy(DeployRequest{
		Nodes:       []component.NodeDef{testutil.Node("t1", "ticker", "f1")},
		ConfigNodes: []component.NodeDef{broker("main", "nats://a")},
	})
	s.Equal(int32(1), started.Load())
}

type startRecorder struct{ started *atomic.Int32 }

func (r *startRecorder) Start(context.Context) { r.started.Add(1) }

func TestDeploy_ContextStores(t *testing.T) {
	reg := component.NewRegistry()
	testutil.MockType(t, reg, "worker", nil)
	rt, _ := startRuntime(t, reg)

	nodes := []component.NodeDef{
		testutil.Node("a", "worker", "f1"),
		testutil.Node("b", "worker", "f1"),
		testutil.Node("c", "worker", "f2"),
	}
	mustDeploy(t, rt, DeployRequest{Nodes: nodes})

	a, _ := rt.GetNode("a")
	a.Context().Node.Set("count", 1.0)
	a.Context().Flow.Set("shared", "f1-value")
	a.Context().Global.Set("g", true)

	b, _ := rt.GetNode("b")
	c, _ := rt.GetNode("c")
	v, ok := b.Context().Flow.Get("shared")
	assert.True(t, ok)
	assert.Equal(t, "f1-value", v)
	_, ok = c.Context().Flow.Get("shared")
	assert.False(t, ok, "flow stores are per tab")
	_, ok = b.Context().Node.Get("count")
	assert.False(t, ok)
	v, _ = c.Context().Global.Get("g")
	assert.Equal(t, true, v)

	// Same id survives a redeploy.
	mustDeploy(t, rt, DeployRequest{Nodes: nodes})
	a, _ = rt.GetNode("a")
	v, ok = a.Context().Node.Get("count")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	// Removed id loses its store.
	mustDeploy(t, rt, DeployRequest{Nodes: nodes[1:]})
	mustDeploy(t, rt, DeployRequest{Nodes: nodes})
	a, _ = rt.GetNode("a")
	assert.Empty(t, a.Context().Node.Keys())
}

func TestNode_CloseRunsEveryCallback(t *testing.T) {
	reg := component.NewRegistry()
	var (
		ran      atomic.Int32
		eventsOK atomic.Bool
	)
	type ping struct{}
	workers := testutil.MockType(t, reg, "worker", func(b *testutil.MockBehavior) {
		b.InitFunc = func(_ context.Context, n component.Node) error {
			events.Subscribe(n.Events(), func(ping) {})
			n.OnClose(func(context.Context) error { panic("teardown panic") })
			n.OnClose(func(context.Context) error { ran.Add(1); return fmt.Errorf("teardown error") })
			n.OnClose(func(context.Context) error {
				ran.Add(1)
				eventsOK.Store(events.Count[ping](n.Events()) == 1)
				return nil
			})
			return nil
		}
		b.CloseFunc = func(context.Context, component.Node) error { return fmt.Errorf("close failed") }
	})
	rt, obs := startRuntime(t, reg)

	mustDeploy(t, rt, DeployRequest{Nodes: []component.NodeDef{testutil.Node("w", "worker", "f1")}})
	require.NoError(t, rt.Stop(testCtx(t)))

	assert.Equal(t, int32(2), ran.Load())
	assert.True(t, eventsOK.Load(), "bus is reset after callbacks")
	assert.Equal(t, 1, workers.Get("w").CloseCalls())
	assert.Equal(t, 0, events.Count[ping](workers.Get("w").Node.Events()))
	assert.Len(t, obs.logsAt(component.LogLevelError), 3)
}

func TestNode_LateCompletionDropped(t *testing.T) {
	reg := component.NewRegistry()
	var cancelled atomic.Bool
	release := make(chan struct{})
	testutil.MockType(t, reg, "worker", func(b *testutil.MockBehavior) {
		b.InputFunc = func(_ context.Context, n component.Node, msg message.Msg) error {
			n.Go(msg, func(ctx context.Context) error {
				<-release
				cancelled.Store(ctx.Err() != nil)
				n.Send(msg)
				n.Status(component.Status{Text: "late"})
				return fmt.Errorf("late failure")
			})
			return nil
		}
	})
	sink := testutil.MockType(t, reg, "sink", nil)
	rt, obs := startRuntime(t, reg)

	mustDeploy(t, rt, DeployRequest{Nodes: []component.NodeDef{
		testutil.Node("w", "worker", "f1", testutil.Out("s")),
		testutil.Node("s", "sink", "f1"),
	}})
	require.NoError(t, rt.Trigger(testCtx(t), "w", map[string]any{"payload": 1.0}))
	idle(t, rt)

	mustDeploy(t, rt, DeployRequest{Nodes: []component.NodeDef{testutil.Node("s", "sink", "f1")}})
	close(release)

	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	idle(t, rt)

	assert.Empty(t, obs.errors())
	assert.Empty(t, obs.statusesFor("w"))
	assert.Empty(t, sink.Received("s"))
}

func TestNode_PostDroppedAfterClose(t *testing.T) {
	reg := component.NewRegistry()
	var posted atomic.Int32
	var node atomic.Value
	testutil.MockType(t, reg, "worker", func(b *testutil.MockBehavior) {
		b.InitFunc = func(_ context.Context, n component.Node) error {
			node.Store(n)
			return nil
		}
	})
	rt, _ := startRuntime(t, reg)

	mustDeploy(t, rt, DeployRequest{Nodes: []component.NodeDef{testutil.Node("w", "worker", "f1")}})
	n := node.Load().(component.Node)

	n.Post(func() { posted.Add(1) })
	idle(t, rt)
	assert.Equal(t, int32(1), posted.Load())

	require.NoError(t, rt.Stop(testCtx(t)))
	n.Post(func() { posted.Add(1) })
	idle(t, rt)
	assert.Equal(t, int32(1), posted.Load())
	assert.False(t, n.Alive())
}

type injectable struct {
	node    component.Node
	payload any
}

func (i *injectable) InjectMessage(payload any) message.Msg {
	if payload == nil {
		payload = i.payload
	}
	return message.New(payload, "injected")
}

func (i *injectable) OnInput(_ context.Context, msg message.Msg) error {
	i.node.Send(msg)
	return nil
}

func TestRuntime_InjectAndTrigger(t *testing.T) {
	reg := component.NewRegistry()
	require.NoError(t, reg.Register(component.Registration{
		Type: "inject",
		Factory: func(n component.Node) (component.Behavior, error) {
			return &injectable{node: n, payload: "configured"}, nil
		},
	}))
	sink := testutil.MockType(t, reg, "sink", nil)
	rt, _ := startRuntime(t, reg)
	ctx := testCtx(t)

	mustDeploy(t, rt, DeployRequest{Nodes: []component.NodeDef{
		testutil.Node("i", "inject", "f1", testutil.Out("s")),
		testutil.Node("s", "sink", "f1"),
	}})

	require.NoError(t, rt.Inject(ctx, "i", nil))
	require.NoError(t, rt.Inject(ctx, "i", "override"))
	got := sink.WaitFor(t, "s", 2)
	assert.Equal(t, "configured", got[0].Payload())
	assert.Equal(t, "override", got[1].Payload())
	assert.Equal(t, "injected", got[0].Topic())

	err := rt.Inject(ctx, "s", nil)
	assert.ErrorIs(t, err, errors.ErrNotInjectable)
	assert.True(t, errors.IsInvalid(err))

	err = rt.Inject(ctx, "missing", nil)
	assert.ErrorIs(t, err, errors.ErrNodeNotFound)

	err = rt.Trigger(ctx, "missing", nil)
	assert.ErrorIs(t, err, errors.ErrNodeNotFound)

	require.NoError(t, rt.Trigger(ctx, "s", map[string]any{"payload": "direct"}))
	idle(t, rt)
	assert.Len(t, sink.Received("s"), 3)
}

func TestRuntime_Lifecycle(t *testing.T) {
	reg := component.NewRegistry()
	workers := testutil.MockType(t, reg, "worker", nil)
	rt := New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	_, err := rt.Deploy(testCtx(t), DeployRequest{Nodes: []component.NodeDef{testutil.Node("w", "worker", "f1")}})
	require.NoError(t, err)

	err = rt.Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, 1, workers.Get("w").CloseCalls(), "shutdown closes nodes")

	_, err = rt.Deploy(testCtx(t), DeployRequest{})
	assert.ErrorIs(t, err, errors.ErrRuntimeStopped)
}
