package rpc

import (
	"context"
	"io"
	"sync"
)

type pipe struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory transports. Closing either end
// closes both.
func Pipe() (Transport, Transport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	done := make(chan struct{})
	once := &sync.Once{}

	return &pipe{in: ba, out: ab, done: done, once: once},
		&pipe{in: ab, out: ba, done: done, once: once}
}

func (p *pipe) Read() ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *pipe) Write(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
