package buffer

import (
	"github.com/c360/semflow/metric"
)

// Option configures a buffer at construction.
type Option[T any] func(*bufferOptions[T])

type bufferOptions[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]
	metricsReg     metric.Registrar
	metricsPrefix  string
}

// WithOverflowPolicy selects what a full buffer does. DropOldest is the default.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *bufferOptions[T]) { o.overflowPolicy = policy }
}

// WithDropCallback observes every item the overflow policy discards. Clear
// does not invoke it.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(o *bufferOptions[T]) { o.dropCallback = callback }
}

// WithMetrics exports the buffer under the "buffer" label. A nil registry
// or empty label leaves metrics off.
func WithMetrics[T any](registry *metric.MetricsRegistry, label string) Option[T] {
	return func(o *bufferOptions[T]) {
		if registry == nil || label == "" {
			return
		}
		o.metricsReg, o.metricsPrefix = registry, label
	}
}

func collectOptions[T any](options []Option[T]) *bufferOptions[T] {
	o := &bufferOptions[T]{overflowPolicy: DropOldest}
	for _, opt := range options {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
