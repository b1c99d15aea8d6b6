package service

import (
	"time"

	"github.com/c360/semflow/component"
	flowengine "github.com/c360/semflow/engine"
	"github.com/c360/semflow/message"
)

var _ flowengine.Observer = (*FlowService)(nil)

// logNotification is the editor's log line.
type logNotification struct {
	NodeID string             `json:"nodeId"`
	Level  component.LogLevel `json:"level"`
	Text   string             `json:"text"`
}

// OnLog implements flowengine.Observer.
func (fs *FlowService) OnLog(entry component.LogEntry) {
	_ = fs.logs.Write(entry)
	fs.hub.Notify("log", logNotification{NodeID: entry.NodeID, Level: entry.Level, Text: entry.Message})
}

// OnStatus implements flowengine.Observer. A zero status clears the entry.
func (fs *FlowService) OnStatus(ev flowengine.StatusEvent) {
	fs.statusMu.Lock()
	if ev.Status.IsZero() {
		delete(fs.statuses, ev.NodeID)
	} else {
		fs.statuses[ev.NodeID] = ev.Status
	}
	fs.statusMu.Unlock()

	fs.hub.Notify("status", ev)
}

// OnError implements flowengine.Observer.
func (fs *FlowService) OnError(ev flowengine.ErrorEvent) {
	_ = fs.errs.Write(ev)
	fs.hub.Notify("error", ev)
}

// OnDebug implements flowengine.Observer.
func (fs *FlowService) OnDebug(ev flowengine.DebugEvent) {
	_ = fs.debug.Write(ev)
	fs.hub.Notify("debug", ev)
}

// OnDownload implements flowengine.Observer.
func (fs *FlowService) OnDownload(ev flowengine.DownloadEvent) {
	fs.hub.Notify("download", ev)
}

// enqueueOutbound queues a message published by an mcp-out node.
func (fs *FlowService) enqueueOutbound(out component.OutboundMessage) {
	msg := message.Clone(out.Msg)
	_ = fs.messages.Write(queuedMessage{
		NodeID:    out.NodeID,
		Payload:   msg.Payload(),
		Topic:     msg.Topic(),
		MsgID:     msg.ID(),
		Timestamp: time.Now(),
	})
}

func (fs *FlowService) nodeStatuses() map[string]component.Status {
	fs.statusMu.RLock()
	defer fs.statusMu.RUnlock()

	out := make(map[string]component.Status, len(fs.statuses))
	for id, st := range fs.statuses {
		out[id] = st
	}
	return out
}
