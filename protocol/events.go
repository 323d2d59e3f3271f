package protocol

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mezonai/bitvm20/transaction"
)

// Event is a state change of a transaction posted to the operator.
type Event interface {
	Type() string
	Timestamp() time.Time
	TxHash() string
}

// TransactionHeld is published when a bundle has been built and the
// transaction waits for verifier signatures.
type TransactionHeld struct {
	tx        *transaction.Transaction
	tapRoot   chainhash.Hash
	timestamp time.Time
}

func NewTransactionHeld(tx *transaction.Transaction, tapRoot chainhash.Hash) *TransactionHeld {
	return &TransactionHeld{tx: tx, tapRoot: tapRoot, timestamp: time.Now()}
}

func (e *TransactionHeld) Type() string {
	return "TransactionHeld"
}

func (e *TransactionHeld) Timestamp() time.Time {
	return e.timestamp
}

func (e *TransactionHeld) TxHash() string {
	return e.tx.Hash()
}

func (e *TransactionHeld) TapRoot() chainhash.Hash {
	return e.tapRoot
}

type TransactionCommitted struct {
	committed *ChallengeableTransaction
	timestamp time.Time
}

func NewTransactionCommitted(committed *ChallengeableTransaction) *TransactionCommitted {
	return &TransactionCommitted{committed: committed, timestamp: time.Now()}
}

func (e *TransactionCommitted) Type() string {
	return "TransactionCommitted"
}

func (e *TransactionCommitted) Timestamp() time.Time {
	return e.timestamp
}

func (e *TransactionCommitted) TxHash() string {
	return e.committed.Tx.Hash()
}

func (e *TransactionCommitted) Transaction() *ChallengeableTransaction {
	return e.committed
}

// TransactionRejected covers validation failures and aborts.
type TransactionRejected struct {
	txHash    string
	err       error
	timestamp time.Time
}

func NewTransactionRejected(txHash string, err error) *TransactionRejected {
	return &TransactionRejected{txHash: txHash, err: err, timestamp: time.Now()}
}

func (e *TransactionRejected) Type() string {
	return "TransactionRejected"
}

func (e *TransactionRejected) Timestamp() time.Time {
	return e.timestamp
}

func (e *TransactionRejected) TxHash() string {
	return e.txHash
}

func (e *TransactionRejected) Err() error {
	return e.err
}
