package ledger

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
	bverrors "github.com/mezonai/bitvm20/errors"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
)

// ValidateTransaction checks, in order, that both accounts exist, the nonce
// matches and can still be incremented, the sender covers the value and the
// receiver cannot overflow. The signature is not checked here.
func (t *Tree) ValidateTransaction(tx *transaction.Transaction) error {
	from, to, err := t.endpoints(tx)
	if err != nil {
		return err
	}
	if tx.FromNonce != from.Nonce {
		return bverrors.NewError(bverrors.ErrCodeInvalidNonce,
			fmt.Sprintf("%s: expected %d, got %d", bverrors.ErrMsgInvalidNonce, from.Nonce, tx.FromNonce))
	}
	if from.Nonce == math.MaxUint64 {
		return bverrors.NewError(bverrors.ErrCodeNonceExhausted, bverrors.ErrMsgNonceExhausted)
	}
	if from.Balance.Lt(&tx.Value) {
		return bverrors.NewError(bverrors.ErrCodeInsufficientFunds, bverrors.ErrMsgInsufficientFunds)
	}
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(&to.Balance, &tx.Value); overflow {
		return bverrors.NewError(bverrors.ErrCodeBalanceOverflow, bverrors.ErrMsgBalanceOverflow)
	}
	return nil
}

func (t *Tree) PrimaryValidateTransaction(tx *transaction.Transaction) bool {
	return t.ValidateTransaction(tx) == nil
}

func (t *Tree) endpoints(tx *transaction.Transaction) (*types.Entry, *types.Entry, error) {
	from, ok := t.lookup(&tx.FromPublicKey)
	if !ok {
		return nil, nil, bverrors.NewError(bverrors.ErrCodeAccountNotFound,
			fmt.Sprintf("%s: sender %s", bverrors.ErrMsgAccountNotFound, types.Address(&tx.FromPublicKey)))
	}
	to, ok := t.lookup(&tx.ToPublicKey)
	if !ok {
		return nil, nil, bverrors.NewError(bverrors.ErrCodeAccountNotFound,
			fmt.Sprintf("%s: recipient %s", bverrors.ErrMsgAccountNotFound, types.Address(&tx.ToPublicKey)))
	}
	return from, to, nil
}

// ApplyTransaction moves value from sender to recipient and increments the
// sender nonce. Nothing changes when validation fails.
func (t *Tree) ApplyTransaction(tx *transaction.Transaction) bool {
	if err := t.ValidateTransaction(tx); err != nil {
		logx.Warn("LEDGER", fmt.Sprintf("apply %s refused: %v", tx.Hash(), err))
		return false
	}
	from, to, _ := t.endpoints(tx)
	from.Balance.Sub(&from.Balance, &tx.Value)
	to.Balance.Add(&to.Balance, &tx.Value)
	from.Nonce++
	logx.Info("LEDGER", fmt.Sprintf("applied %s => sender: %v, recipient: %v", tx.Hash(), from, to))
	return true
}

// UndoTransaction reverts the most recently applied transaction. Calling it
// for any other transaction corrupts balances.
func (t *Tree) UndoTransaction(tx *transaction.Transaction) bool {
	from, to, err := t.endpoints(tx)
	if err != nil {
		logx.Warn("LEDGER", fmt.Sprintf("undo %s refused: %v", tx.Hash(), err))
		return false
	}
	if from.Nonce == 0 {
		logx.Warn("LEDGER", fmt.Sprintf("undo %s refused: sender nonce is zero", tx.Hash()))
		return false
	}
	if to.Balance.Lt(&tx.Value) {
		logx.Warn("LEDGER", fmt.Sprintf("undo %s refused: recipient balance below value", tx.Hash()))
		return false
	}
	to.Balance.Sub(&to.Balance, &tx.Value)
	from.Balance.Add(&from.Balance, &tx.Value)
	from.Nonce--
	logx.Info("LEDGER", fmt.Sprintf("undone %s => sender: %v, recipient: %v", tx.Hash(), from, to))
	return true
}
