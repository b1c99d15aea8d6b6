// Package errors provides standardized error handling for the semflow runtime.
// It includes error classification, the runtime's sentinel errors, and helpers
// for consistent wrapping across packages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass tells callers how to react to a failure.
type ErrorClass int

const (
	// ErrorTransient failures may succeed on retry.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid failures come from bad input and will fail again.
	ErrorInvalid
	// ErrorFatal failures should stop processing.
	ErrorFatal
)

var classNames = [...]string{"transient", "invalid", "fatal"}

func (ec ErrorClass) String() string {
	if ec < 0 || int(ec) >= len(classNames) {
		return "unknown"
	}
	return classNames[ec]
}

// Runtime lifecycle.
var (
	ErrAlreadyStarted  = errors.New("runtime already started")
	ErrNotStarted      = errors.New("runtime not started")
	ErrRuntimeStopped  = errors.New("runtime stopped")
	ErrShuttingDown    = errors.New("runtime is shutting down")
	ErrDeployCancelled = errors.New("deploy cancelled")
)

// Node graph.
var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrDuplicateType   = errors.New("node type already registered")
	ErrDuplicateNode   = errors.New("duplicate node id")
	ErrNotInjectable   = errors.New("node does not accept injected messages")
)

// Editor peers, the automation bridge and broker connections.
var (
	ErrNoPeer            = errors.New("no editor connected")
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// Data, storage and configuration.
var (
	ErrInvalidData        = errors.New("invalid data format")
	ErrParsingFailed      = errors.New("parsing failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyNotFound        = errors.New("key not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingConfig      = errors.New("missing required configuration")
)

// rule is the fallback classification for errors that were never wrapped
// with a class: a match on any sentinel or message fragment assigns it.
type rule struct {
	sentinels []error
	fragments []string
}

func (r rule) matches(err error) bool {
	for _, s := range r.sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	if len(r.fragments) == 0 {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range r.fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

var rules = map[ErrorClass]rule{
	ErrorTransient: {
		sentinels: []error{ErrConnectionTimeout, ErrConnectionLost, ErrNoConnection, ErrNoPeer,
			ErrStorageUnavailable, context.DeadlineExceeded, context.Canceled},
		fragments: []string{"timeout", "connection", "network", "temporary", "unavailable", "broken pipe"},
	},
	ErrorInvalid: {
		sentinels: []error{ErrInvalidData, ErrParsingFailed, ErrNodeNotFound, ErrUnknownNodeType, ErrNotInjectable},
	},
	ErrorFatal: {
		sentinels: []error{ErrInvalidConfig, ErrMissingConfig, ErrRuntimeStopped},
		fragments: []string{"fatal", "panic", "invalid config", "missing config"},
	},
}

// ClassifiedError carries an explicit class and the component/operation
// that produced it.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error { return ce.Err }

// is reports whether err belongs to class. An explicit ClassifiedError
// anywhere in the chain wins over the fallback rules.
func is(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == class
	}
	return rules[class].matches(err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return is(err, ErrorTransient) }

// IsInvalid reports whether err was caused by bad input.
func IsInvalid(err error) bool { return is(err, ErrorInvalid) }

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool { return is(err, ErrorFatal) }

// Classify returns the class of err. Unrecognized errors, and nil, are
// treated as transient.
func Classify(err error) ErrorClass {
	for _, class := range []ErrorClass{ErrorInvalid, ErrorTransient, ErrorFatal} {
		if is(err, class) {
			return class
		}
	}
	return ErrorTransient
}

// Wrap adds context as "component.method: action failed: err".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient is Wrap plus the transient class.
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid is Wrap plus the invalid class.
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal is Wrap plus the fatal class.
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// StackTracer is implemented by errors that carry a captured stack.
type StackTracer interface {
	Stack() string
}

// PanicError is produced when a node hook panics. Value is the recovered value.
type PanicError struct {
	Value any
	stack string
}

// NewPanicError captures a recovered panic value with its stack.
func NewPanicError(value any, stack []byte) *PanicError {
	return &PanicError{Value: value, stack: string(stack)}
}

func (p *PanicError) Error() string {
	if err, ok := p.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p.Value)
}

// Unwrap exposes a panicked error value.
func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}

// Stack implements StackTracer.
func (p *PanicError) Stack() string { return p.stack }

// StackOf returns the stack carried by err or any error it wraps.
func StackOf(err error) string {
	var st StackTracer
	if errors.As(err, &st) {
		return st.Stack()
	}
	return ""
}

// Is, As, New and Join re-export the standard library helpers so callers
// importing this package do not need both.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)
