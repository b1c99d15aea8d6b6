package component

import (
	"context"

	"github.com/c360/semflow/message"
)

// Behavior is the per-instance implementation of a node type. Its hooks are
// optional: a behavior implements whichever of Initializer, InputHandler and
// Closer it needs. Hooks run on the runtime loop, one at a time.
type Behavior any

// Initializer runs once after construction, before the node receives input.
// Asynchronous setup should be started with Node.Go; deploy waits for it.
type Initializer interface {
	Init(ctx context.Context) error
}

// InputHandler processes one delivered message. A returned error is
// reported through Node.Error with msg as the origin.
type InputHandler interface {
	OnInput(ctx context.Context, msg message.Msg) error
}

// Starter runs once the whole deployment is initialized. Timers and other
// long-running work belong here rather than in Init, which deploy awaits.
type Starter interface {
	Start(ctx context.Context)
}

// Closer releases the instance's resources when it leaves the deployment.
type Closer interface {
	Close(ctx context.Context) error
}

// Catch scopes.
const (
	ScopeAll      = "all"
	ScopeUncaught = "uncaught"
)

// CatchHandler marks a behavior that receives error records.
type CatchHandler interface {
	CatchScope() string
}

// Injector builds the message an inject request delivers to the node.
// A nil payload means the node's configured payload.
type Injector interface {
	InjectMessage(payload any) message.Msg
}

// CloseFunc is a teardown callback registered with Node.OnClose.
type CloseFunc func(ctx context.Context) error
