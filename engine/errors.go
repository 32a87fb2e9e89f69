package engine

import "fmt"

// Kind tags the machine-readable category of a failure, per §7.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindMissingService Kind = "missing_service"
	KindHandlerFailure Kind = "handler_failure"
	KindTimeout        Kind = "timeout"
	KindCancelled      Kind = "cancelled"
	KindDeadlock       Kind = "deadlock"
	KindIterationLimit Kind = "iteration_limit"
	KindInternal       Kind = "internal"
)

// Error pairs a Kind with a message; node-level failures and run-terminating
// failures are both represented this way so emit.Event.Kind can be read off
// a single type.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
