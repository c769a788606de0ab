// Package errors provides the error taxonomy shared by the planner: configuration,
// algorithm, evaluation-timeout and class/type failures, each carrying a stack trace.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an error. Every kind except KindInternal aborts a run.
type Kind int

const (
	KindInternal Kind = iota
	// KindConfig is raised before any iteration runs, e.g. a lifetime that is
	// not a multiple of the period length or a missing parameter.
	KindConfig
	// KindAlgorithm is raised when the population empties during culling or breeding.
	KindAlgorithm
	// KindTimeout is raised when a worker result does not arrive in time.
	KindTimeout
	// KindClassType is raised when a configured model does not provide the
	// required capability set.
	KindClassType
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAlgorithm:
		return "algorithm"
	case KindTimeout:
		return "timeout"
	case KindClassType:
		return "class_type"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrConfig    = &Error{Kind: KindConfig, Message: "configuration error"}
	ErrAlgorithm = &Error{Kind: KindAlgorithm, Message: "algorithm error"}
	ErrTimeout   = &Error{Kind: KindTimeout, Message: "evaluation timeout"}
	ErrClassType = &Error{Kind: KindClassType, Message: "class type error"}
)

// Error represents an error with context and stack trace.
type Error struct {
	Kind Kind
	// The underlying error that was returned
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Message != "" {
		builder.WriteString(e.Message)
	}

	if e.Operation != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString("operation=")
		builder.WriteString(e.Operation)
	}

	if e.Component != "" {
		if builder.Len() > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("component=")
		builder.WriteString(e.Component)
	}

	if e.Err != nil {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConfig) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Kind != KindInternal
}

// WithOperation adds an operation to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent adds a component to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

func newKind(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Operation: op,
		Stack:     getStackTrace(),
	}
}

// Config creates a configuration error.
func Config(op, format string, args ...interface{}) *Error {
	return newKind(KindConfig, op, format, args...)
}

// Algorithm creates an algorithm error.
func Algorithm(op, format string, args ...interface{}) *Error {
	return newKind(KindAlgorithm, op, format, args...)
}

// Timeout creates an evaluation timeout error.
func Timeout(op, format string, args ...interface{}) *Error {
	return newKind(KindTimeout, op, format, args...)
}

// ClassType creates a class/type error.
func ClassType(op, format string, args ...interface{}) *Error {
	return newKind(KindClassType, op, format, args...)
}

// New creates a new error with a message.
func New(msg string) *Error {
	return &Error{
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Errorf creates a new error with a formatted message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// Wrap wraps an error with additional context. The kind of a wrapped *Error
// is preserved.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}

	e := &Error{
		Err:     err,
		Message: msg,
		Stack:   getStackTrace(),
	}
	var inner *Error
	if stderrors.As(err, &inner) {
		e.Kind = inner.Kind
		e.Stack = inner.Stack
	}
	return e
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, getStackTrace, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if any.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}
