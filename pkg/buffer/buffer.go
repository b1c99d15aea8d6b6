// Package buffer provides generic, thread-safe ring buffers.
//
// The runtime keeps its recent debug output, node errors, log lines, the
// automation bridge message queue and each editor peer's notification outbox
// in circular buffers. Writes never block: a full buffer either evicts its
// oldest item (DropOldest) or rejects the new one (DropNewest). Statistics are
// always collected; Prometheus export is optional via WithMetrics.
package buffer

// Buffer is a fixed-capacity FIFO parameterized by item type.
type Buffer[T any] interface {
	// Write adds an item. A full buffer applies the overflow policy.
	Write(item T) error

	// Read retrieves and removes the oldest item.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max of the oldest items.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	// Snapshot copies every held item, oldest first, without removing any.
	Snapshot() []T

	// Recent copies the newest n items, oldest first. n <= 0 means all.
	Recent(n int) []T

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear removes all items without invoking the drop callback.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close rejects further writes.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with an item dropped by the overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Returns an error only if metrics registration fails.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	r, err := newRing(capacity, collectOptions(options))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// MustCircularBuffer is NewCircularBuffer for buffers created without metrics.
func MustCircularBuffer[T any](capacity int, options ...Option[T]) Buffer[T] {
	b, err := NewCircularBuffer(capacity, options...)
	if err != nil {
		panic(err)
	}
	return b
}
