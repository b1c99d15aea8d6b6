// Package service composes the flow runtime with its external surfaces.
//
// FlowService owns one flow engine runtime, the editor peer hub and the
// automation bridge. It is the runtime's Observer: every node log, status,
// error, debug value and download passes through it, is kept in bounded ring
// buffers where the bridge can query it, and is pushed to connected editors
// as a notification.
//
// Two RPC surfaces are served:
//
// Editor peers (websocket at /comms) can deploy, inject, trigger and stop
// flows, drive the automation bridge (connectMcp, disconnectMcp,
// getMcpStatus) and read or write the storage documents (getFlows,
// saveFlows, getCredentials, saveCredentials, getSettings, saveSettings).
//
// The automation bridge is split in two. Canvas operations (getState,
// createFlow, addNode, connectNodes and the rest) exist only in the editor,
// so they are proxied to the first connected peer; with no peer attached
// they answer {success:false, errors:["no editor connected"]}. Runtime
// operations (getDebugOutput, getErrors, getLogs, inject, trigger,
// getMessages, sendMessage and friends) are served from the service's own
// state and keep working with zero editors connected.
//
// Messages leave flows for the bridge through mcp-out nodes, which publish
// component.OutboundMessage on the runtime bus; they queue here until the
// bridge drains them with getMessages. sendMessage publishes
// component.ExternalMessage, which mcp-in nodes turn into flow messages.
package service
