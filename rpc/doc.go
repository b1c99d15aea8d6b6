// Package rpc implements a bidirectional JSON-RPC 2.0 channel.
//
// Both ends of a Conn may issue calls and notifications. Outgoing calls are
// correlated with their responses by id, so any number of calls may be in
// flight at once. Incoming requests are dispatched to a Handler on their own
// goroutine; a slow handler never blocks the read loop.
//
// A Conn runs over a Transport, which moves whole JSON documents. Two
// transports are provided: NewWebSocket wraps a gorilla websocket connection
// and Pipe returns a connected in-memory pair for tests.
//
// Basic usage:
//
//	mux := rpc.NewMux()
//	mux.RegisterFunc("ping", func(ctx context.Context, req *rpc.Request) (any, error) {
//	    return "pong", nil
//	})
//
//	conn := rpc.NewConn(rpc.NewWebSocket(ws), mux, rpc.WithLogger(logger))
//	go conn.Serve(ctx)
//
//	var out string
//	err := conn.Call(ctx, "hello", map[string]any{"name": "editor"}, &out)
//
// Handler errors are returned to the caller as structured errors. Return a
// *Error to control the code; any other error becomes CodeServerError.
package rpc
