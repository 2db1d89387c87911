package minerchain

import "fmt"

// Kind tags the recoverable-vs-fatal error taxonomy of spec.md §7 for the
// miner chain component.
type Kind string

const (
	KindInvalidHash     Kind = "invalid_hash"
	KindGap             Kind = "gap"
	KindFork            Kind = "fork"
	KindAlreadyPresent  Kind = "already_present"
	KindMiningInterrupt Kind = "mining_interrupted"
	KindMaxTries        Kind = "max_tries_exceeded"
	KindConfig          Kind = "config_error"
)

// Error wraps a Kind with a human-readable message, following the
// component-boundary error-taxonomy design of spec.md §7: ingest-time
// failures are recoverable (the block is dropped or orphaned, never a
// panic), while KindConfig is fatal at startup.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
