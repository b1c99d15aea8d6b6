// Package errors provides standardized error handling for semflow.
//
// # Overview
//
// Errors are sorted into three classes: Transient (temporary, retryable),
// Invalid (bad input such as an unknown node id, not retryable) and Fatal
// (unrecoverable, stop processing). The engine, the RPC surfaces and the
// automation bridge all use the same classification so that RPC handlers can
// map failures onto structured error responses and the bridge can decide
// whether a dial failure is worth another attempt.
//
// # Wrapping
//
// Wrap third-party errors with component context:
//
//	if err := store.SaveFlows(ctx, flows); err != nil {
//	    return errors.Wrap(err, "service", "saveFlows", "persist flows")
//	}
//
// Attach a class when the caller needs to act on it:
//
//	return errors.WrapInvalid(errors.ErrNodeNotFound, "service", "inject", "lookup node")
//
// # Panics
//
// Node hooks run under recover. A recovered value becomes a *PanicError that
// carries the goroutine stack; StackOf extracts it for error records.
package errors
