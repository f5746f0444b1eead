// Package epaxoserr defines the error taxonomy of section 7 of the
// specification: ProtocolViolation, RoutingMisaddress, MissingSlot,
// LateMessage and SubstrateSendFailure. None of these are surfaced to
// clients directly; Set responses always carry status=true for this core
// (negative acknowledgements belong to the out-of-scope recovery protocol).
package epaxoserr

import "github.com/pkg/errors"

// ProtocolViolation marks a safety-invariant breach: a slot occupied with a
// different command than the one being inserted, or a fast-path decision
// taken after status has already advanced past PreAccepted. consensus.Machine
// panics with it in debug mode, and logs it otherwise, only when re-inserting
// an entry it is committing fails; a conflicting command carried by an
// inbound PreAccept, Accept or Commit is returned as an error, which
// internal/replica logs and drops in both modes. The fast-path case is
// never raised: the fast path is only taken while status is PreAccepted.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string { return "protocol violation: " + e.Reason }

// NewProtocolViolation wraps a reason string with a stack trace for the
// ambient error-wrapping convention used across this repo.
func NewProtocolViolation(reason string) error {
	return errors.WithStack(&ProtocolViolation{Reason: reason})
}

// RoutingMisaddress marks a PreAcceptOk/AcceptOk delivered to a replica that
// is not the command leader of the instance it names. Logged and dropped.
type RoutingMisaddress struct {
	Instance string
}

func (e *RoutingMisaddress) Error() string {
	return "routing misaddress: not the command leader for " + e.Instance
}

func NewRoutingMisaddress(instance string) error {
	return errors.WithStack(&RoutingMisaddress{Instance: instance})
}

// MissingSlot marks a PreAcceptOk/AcceptOk handler finding no slot at the
// named instance. The leader cannot have sent a request it did not log, so
// this is always fatal.
type MissingSlot struct {
	Instance string
}

func (e *MissingSlot) Error() string { return "missing slot for instance " + e.Instance }

func NewMissingSlot(instance string) error {
	return errors.WithStack(&MissingSlot{Instance: instance})
}

// LateMessage marks a reply arriving after its instance has already
// committed. Always silently ignored; exported so tests can assert on it.
type LateMessage struct {
	Instance string
}

func (e *LateMessage) Error() string { return "late message for committed instance " + e.Instance }

func NewLateMessage(instance string) error {
	return errors.WithStack(&LateMessage{Instance: instance})
}

// SubstrateSendFailure marks an undeliverable destination reported by the
// transport. Policy: drop; correctness is restored by upper-level
// retransmission or (future) Explicit Prepare.
type SubstrateSendFailure struct {
	Destination string
	Cause       error
}

func (e *SubstrateSendFailure) Error() string {
	return "send failed to " + e.Destination + ": " + e.Cause.Error()
}

func (e *SubstrateSendFailure) Unwrap() error { return e.Cause }

func NewSubstrateSendFailure(destination string, cause error) error {
	return errors.WithStack(&SubstrateSendFailure{Destination: destination, Cause: cause})
}
