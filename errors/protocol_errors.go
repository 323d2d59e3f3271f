package errors

import (
	stderrors "errors"

	"github.com/mezonai/bitvm20/jsonx"
)

// ProtocolErrorCode identifies why a transaction was refused.
type ProtocolErrorCode string

const (
	ErrCodeInternal ProtocolErrorCode = "internal_error"

	// Validation errors
	ErrCodeAccountNotFound   ProtocolErrorCode = "account_not_found"
	ErrCodeInvalidNonce      ProtocolErrorCode = "invalid_nonce"
	ErrCodeNonceExhausted    ProtocolErrorCode = "nonce_exhausted"
	ErrCodeInsufficientFunds ProtocolErrorCode = "insufficient_funds"
	ErrCodeBalanceOverflow   ProtocolErrorCode = "balance_overflow"
	ErrCodeInvalidSignature  ProtocolErrorCode = "invalid_signature"

	// State errors
	ErrCodeCapacityExceeded  ProtocolErrorCode = "capacity_exceeded"
	ErrCodeTransactionOnHold ProtocolErrorCode = "transaction_on_hold"
	ErrCodeLedgerDesync      ProtocolErrorCode = "ledger_desync"
	ErrCodeInvalidBundle     ProtocolErrorCode = "invalid_bundle"
)

const (
	ErrMsgAccountNotFound   = "Account does not exist in the ledger"
	ErrMsgInvalidNonce      = "Transaction nonce does not match the account nonce"
	ErrMsgNonceExhausted    = "Account nonce cannot be incremented any further"
	ErrMsgInsufficientFunds = "Not enough balance in the sending account"
	ErrMsgBalanceOverflow   = "Transfer would overflow the receiving balance"
	ErrMsgInvalidSignature  = "Transaction signature is invalid"
	ErrMsgCapacityExceeded  = "Ledger has no free slots"
	ErrMsgTransactionOnHold = "Another transaction is waiting for verifier signatures"
	ErrMsgLedgerDesync      = "Ledger state diverged from the operator"
	ErrMsgInvalidBundle     = "Execution context bundle failed validation"
)

// ProtocolError is the error reported for an expected, non-fatal refusal.
type ProtocolError struct {
	Code    ProtocolErrorCode `json:"code"`
	Message string            `json:"message"`
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	b, _ := jsonx.Marshal(ProtocolError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(b)
}

// NewError creates a new ProtocolError and returns it as error interface
func NewError(code ProtocolErrorCode, message string) error {
	return &ProtocolError{
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the code of a wrapped ProtocolError, or ErrCodeInternal.
func CodeOf(err error) ProtocolErrorCode {
	var pe *ProtocolError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ProtocolErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
