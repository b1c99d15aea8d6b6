package peer

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/semflow/pkg/buffer"
	"github.com/c360/semflow/rpc"
)

const notifyTimeout = 10 * time.Second

type notification struct {
	method string
	params any
}

// Peer is one connected editor.
type Peer struct {
	info   Info
	conn   *rpc.Conn
	outbox buffer.Buffer[notification]
	wake   chan struct{}
	logger *slog.Logger
}

// ID returns the peer id.
func (p *Peer) ID() string { return p.info.ID }

// Info describes the peer.
func (p *Peer) Info() Info { return p.info }

// Done is closed when the peer disconnects.
func (p *Peer) Done() <-chan struct{} { return p.conn.Done() }

// Live reports whether the connection is still open.
func (p *Peer) Live() bool {
	select {
	case <-p.conn.Done():
		return false
	default:
		return true
	}
}

// Call invokes method on this peer.
func (p *Peer) Call(ctx context.Context, method string, params, result any) error {
	return p.conn.Call(ctx, method, params, result)
}

// Close disconnects the peer.
func (p *Peer) Close() error {
	return p.conn.Close()
}

func (p *Peer) enqueue(n notification) {
	if err := p.outbox.Write(n); err != nil {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// writeLoop drains the outbox in order. Write failures are logged and
// otherwise ignored; a dead socket ends the loop through Done.
func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.conn.Done():
			return
		case <-p.wake:
		}

		for {
			n, ok := p.outbox.Read()
			if !ok {
				break
			}
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			err := p.conn.Notify(ctx, n.method, n.params)
			cancel()
			if err != nil {
				p.logger.Debug("Notification dropped", "method", n.method, "error", err)
			}
		}
	}
}
