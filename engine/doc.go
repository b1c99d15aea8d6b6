// Package flowengine executes deployed flows.
//
// A Runtime owns one live node graph. It builds node instances from a
// component.Registry, routes the messages they send along their wires,
// routes their failures to catch nodes, and rebuilds the graph on each
// Deploy while keeping unchanged config nodes (and the connections they
// hold) running.
//
// # Execution model
//
// Every hook (Init, OnInput, Start, Close), every message delivery and every
// deploy phase runs as a task on a single loop goroutine started by Run.
// Node code never runs concurrently with other node code unless it starts
// its own goroutines with Node.Go. Deliveries are queued rather than called
// directly, so a long chain of nodes does not grow the stack and sibling
// deliveries interleave with other pending work.
//
//	rt := flowengine.New(registry, flowengine.WithObserver(svc))
//	go rt.Run(ctx)
//
//	result, err := rt.Deploy(ctx, flowengine.DeployRequest{
//	    Nodes:       nodes,
//	    ConfigNodes: configNodes,
//	})
//
// # Deploy
//
// Deploy closes every ordinary node, closes config nodes that were removed
// or whose definition changed (component.ConfigEqual), builds and
// initializes the new config nodes, then the ordinary nodes, and finally
// rebuilds the catch index and runs Start hooks. Asynchronous work an Init
// hook starts with Node.Go is awaited before the deploy returns. A node that
// fails to build is logged and omitted; the rest of the deploy continues.
//
// # Errors
//
// Node.Error, a failing OnInput and a panicking hook all end the same way: a
// sticky red status, an ErrorEvent for the Observer, and an error record
// delivered to catch nodes. Handlers with scope "all" are tried first;
// "uncaught" handlers only receive records no other handler took.
//
// # Late callbacks
//
// Closing a node cancels the context passed to its Go work. Sends, statuses
// and errors from a closed node are dropped, as are its Post callbacks.
package flowengine
