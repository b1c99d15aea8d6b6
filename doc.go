// Package semflow is a flow execution runtime. A flow is a graph of node
// instances connected by wires; semflow deploys flow documents, routes
// messages between nodes and reports what the nodes log, show and throw.
//
// # Architecture
//
// All node hooks run on a single runtime loop. Messages leaving a node are
// deep-copied per extra destination and delivered as deferred tasks, so a
// node never observes another node's mutations and sends made from inside
// a handler are processed after that handler returns.
//
//	editor ──ws──▶ peer.Hub ──▶ service.FlowService ──▶ engine.Runtime
//	                                  │                     │
//	bridge ◀──ws── mcp.Bridge ◀───────┘              node behaviors
//	                                                 (input, processor,
//	                                                  output, connection)
//
// Packages:
//   - component: node type registry, the Node handle and behavior hooks
//   - engine: the runtime loop, deploys, message routing and catch routing
//   - message: messages, deep copies and dotted property paths
//   - rpc: JSON-RPC 2.0 connections over websocket or in-memory pipes
//   - peer: the editor hub and its broadcast notifications
//   - mcp: the automation bridge client with fixed-delay reconnect
//   - service: binds runtime, editors, bridge and storage together
//   - flowstore: flows, credentials and settings documents in memory or NATS KV
//   - natsclient: the NATS connection wrapper shared by storage and nodes
//   - config, errors, metric, health: the ambient stack
//
// # Node types
//
// componentregistry registers the built-in types: inject, mcp-in and
// nats-in inputs; catch, change and transform processors; debug, download,
// mcp-out and nats-out outputs; and the nats-broker config node.
//
// # Running
//
//	semflow serve --config semflow.yaml
//	semflow validate --config semflow.yaml --flows flows.json
//
// # Testing
//
//	go test ./...
//	go test -tags=integration ./...  # NATS tests in containers
package semflow
