package flowengine

import (
	"time"

	"github.com/c360/semflow/component"
)

// Observer receives everything nodes report. Methods may be called from any
// goroutine and must not block.
type Observer interface {
	OnLog(entry component.LogEntry)
	OnStatus(ev StatusEvent)
	OnError(ev ErrorEvent)
	OnDebug(ev DebugEvent)
	OnDownload(ev DownloadEvent)
}

// StatusEvent is a node status change.
type StatusEvent struct {
	NodeID string           `json:"nodeId"`
	Status component.Status `json:"status"`
}

// ErrorEvent is one reported node failure.
type ErrorEvent struct {
	NodeID    string    `json:"nodeId"`
	NodeName  string    `json:"nodeName,omitempty"`
	NodeType  string    `json:"nodeType"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	MsgID     string    `json:"_msgid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DebugEvent is one value reported by a debug node.
type DebugEvent struct {
	NodeID    string    `json:"nodeId"`
	NodeName  string    `json:"nodeName,omitempty"`
	Property  string    `json:"property,omitempty"`
	Payload   any       `json:"payload"`
	Topic     string    `json:"topic,omitempty"`
	MsgID     string    `json:"_msgid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DownloadEvent asks editors to save a file produced by a node.
type DownloadEvent struct {
	NodeID string `json:"nodeId"`
	component.DownloadOutput
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) OnLog(component.LogEntry) {}
func (NopObserver) OnStatus(StatusEvent)     {}
func (NopObserver) OnError(ErrorEvent)       {}
func (NopObserver) OnDebug(DebugEvent)       {}
func (NopObserver) OnDownload(DownloadEvent) {}
