// Package testutil provides helpers for testing node types and deployments.
//
// MockType registers a node type whose instances record every hook call and
// every message they receive, so a test can deploy a flow and assert on what
// arrived where:
//
//	reg := component.NewRegistry()
//	sink := testutil.MockType(t, reg, "sink", nil)
//
//	rt := flowengine.New(reg)
//	go rt.Run(ctx)
//	_, err := rt.Deploy(ctx, flowengine.DeployRequest{Nodes: []component.NodeDef{
//	    testutil.Node("a", "sink", "f1"),
//	}})
//
//	sink.WaitFor(t, "a", 1)
//
// MockNATSClient is an in-memory stand-in for natsclient.Client's
// Publish/Subscribe surface, for nodes that talk to a broker.
package testutil
