package protocol

import (
	"fmt"

	bverrors "github.com/mezonai/bitvm20/errors"
)

// State is the operator's view of the latest posted transaction.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateCommitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateCommitted:
		return "committed"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ProtocolViolation is raised by panic when a verifier's ledger cannot
// resolve a broadcast transaction. It means the replica has diverged from the
// operator and must not keep running.
type ProtocolViolation struct {
	VerifierID int
	Reason     string
}

func (v *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation on verifier %d: %s", v.VerifierID, v.Reason)
}

func (v *ProtocolViolation) Unwrap() error {
	return bverrors.NewError(bverrors.ErrCodeLedgerDesync, bverrors.ErrMsgLedgerDesync)
}
