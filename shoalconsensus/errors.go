package shoalconsensus

import "fmt"

// Error is a consensus-engine failure: always recoverable, never a panic,
// matching spec.md §7's propagation rule for data-driven failures.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func newError(format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
