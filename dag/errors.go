package dag

import "fmt"

// Kind tags the certificate-level error taxonomy of spec.md §7.
type Kind string

const (
	KindEquivocation  Kind = "equivocation"
	KindParentMissing Kind = "parent_not_in_dag"
	KindQuorumNotMet  Kind = "quorum_not_met"
	KindRoundMismatch Kind = "round_mismatch"
)

// Error wraps a Kind with a human-readable message. Certificate-level
// failures are always recoverable: the certificate is rejected, never
// causing a panic (spec.md §7).
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
