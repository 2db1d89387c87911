package chainsync

import "fmt"

// Kind tags the sync-level error taxonomy of spec.md §7: recoverable by
// retry or by moving to the next peer.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindConnectionError Kind = "connection_error"
	KindPeerUnavailable Kind = "peer_unavailable"
)

// Error wraps a Kind with a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
