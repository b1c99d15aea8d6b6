// Package mcp connects the runtime to an external automation bridge.
//
// The bridge is a single outbound JSON-RPC connection. After dialing, the
// runtime registers itself as a controllable device with registerDevice,
// falling back to the older registerClient call when the bridge rejects the
// first. Once registered, the bridge issues calls against the runtime's
// handler like any editor would.
//
// Transport failures trigger a reconnect after a fixed delay, forever, until
// Disconnect is called or a new Connect replaces the session. Each Connect
// starts a new session; events from a superseded session (a late close, a
// failed dial) are ignored so they cannot clobber the state of the session
// that replaced it.
//
// Status changes are reported through the WithStatusHandler callback, which
// the service forwards to editors as mcpStatus notifications.
package mcp
