// Package peer manages editor connections.
//
// Each editor that connects becomes a Peer: an rpc.Conn over a websocket whose
// incoming calls are served by the Hub's handler. The Hub pushes runtime
// notifications (log, debug, error, status, download, mcpStatus) to every
// peer without back-pressure. Each peer owns a fixed-size outbox; when a peer
// falls behind, its oldest queued notifications are discarded and the
// runtime never waits on it.
//
// Calls that need an editor, such as canvas edits requested by the
// automation bridge, go to the first connected peer through Hub.Call, which
// fails with errors.ErrNoPeer when nobody is attached.
package peer
