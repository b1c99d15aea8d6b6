package buffer

import (
	"sync"

	"github.com/c360/semflow/errors"
)

// ring is a slice-backed circular FIFO. start indexes the oldest item and
// count items follow it, wrapping at len(slots).
type ring[T any] struct {
	mu     sync.RWMutex
	slots  []T
	start  int
	count  int
	closed bool

	policy  OverflowPolicy
	onDrop  DropCallback[T]
	stats   *Statistics
	metrics *bufferMetrics
}

func newRing[T any](capacity int, opts *bufferOptions[T]) (*ring[T], error) {
	r := &ring[T]{
		slots:  make([]T, max(capacity, 1)),
		policy: opts.overflowPolicy,
		onDrop: opts.dropCallback,
		stats:  NewStatistics(),
	}
	if opts.metricsReg != nil {
		m, err := registerBufferMetrics(opts.metricsReg, opts.metricsPrefix, r)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewCircularBuffer", "metrics registration")
		}
		r.metrics = m
	}
	return r, nil
}

// index maps the i-th oldest item to its slot.
func (r *ring[T]) index(i int) int {
	return (r.start + i) % len(r.slots)
}

// popLocked removes and returns the oldest item. The caller holds mu and
// has checked count > 0.
func (r *ring[T]) popLocked() T {
	var zero T
	item := r.slots[r.start]
	r.slots[r.start] = zero
	r.start = r.index(1)
	r.count--
	return item
}

func (r *ring[T]) Write(item T) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrShuttingDown, "Buffer", "Write", "buffer closed")
	}

	var evicted []T
	if r.count == len(r.slots) {
		r.stats.Overflow()
		r.stats.Drop()
		r.metrics.drop()
		if r.policy == DropNewest {
			r.mu.Unlock()
			r.dropped(item)
			return nil
		}
		evicted = append(evicted, r.popLocked())
	}

	r.slots[r.index(r.count)] = item
	r.count++
	r.stats.Write()
	r.stats.UpdateSize(int64(r.count))
	r.metrics.write()
	r.mu.Unlock()

	// Outside the lock so the callback may use the buffer.
	for _, e := range evicted {
		r.dropped(e)
	}
	return nil
}

func (r *ring[T]) dropped(item T) {
	if r.onDrop != nil {
		r.onDrop(item)
	}
}

func (r *ring[T]) Read() (T, bool) {
	items := r.ReadBatch(1)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

func (r *ring[T]) ReadBatch(n int) []T {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n = min(n, r.count)
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = r.popLocked()
		r.stats.Read()
	}
	r.stats.UpdateSize(int64(r.count))
	return out
}

func (r *ring[T]) Peek() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		var zero T
		return zero, false
	}
	r.stats.Peek()
	return r.slots[r.start], true
}

func (r *ring[T]) Snapshot() []T { return r.Recent(0) }

func (r *ring[T]) Recent(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	skip := r.count - n
	out := make([]T, n)
	for i := range out {
		out[i] = r.slots[r.index(skip+i)]
	}
	return out
}

func (r *ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *ring[T]) Capacity() int { return len(r.slots) }

func (r *ring[T]) IsFull() bool { return r.Size() == len(r.slots) }

func (r *ring[T]) IsEmpty() bool { return r.Size() == 0 }

func (r *ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.slots)
	r.start, r.count = 0, 0
	r.stats.UpdateSize(0)
}

func (r *ring[T]) Stats() *Statistics { return r.stats }

// Close rejects further writes. Items already held stay readable.
func (r *ring[T]) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
