package protocol

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	bverrors "github.com/mezonai/bitvm20/errors"
	"github.com/mezonai/bitvm20/execctx"
	"github.com/mezonai/bitvm20/ledger"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/monitoring"
	"github.com/mezonai/bitvm20/transaction"
)

// Verifier mirrors the operator's ledger and signs off on transactions whose
// bundle it can reproduce.
type Verifier struct {
	id      int
	tree    *ledger.Tree
	key     *btcec.PrivateKey
	history []*transaction.Transaction
}

func NewVerifier(id int, tree *ledger.Tree, key *btcec.PrivateKey) *Verifier {
	return &Verifier{id: id, tree: tree, key: key}
}

func (v *Verifier) ID() int {
	return v.id
}

func (v *Verifier) PublicKey() *btcec.PublicKey {
	return v.key.PubKey()
}

func (v *Verifier) Tree() *ledger.Tree {
	return v.tree
}

func (v *Verifier) History() []*transaction.Transaction {
	return append([]*transaction.Transaction(nil), v.history...)
}

// ReceiveBroadcast rebuilds the bundle for p from the local ledger and the
// supplied one-time keys, checks every context and applies the transaction.
// Ordinary validation failures are returned as errors. A transaction whose
// endpoints are unknown locally panics with *ProtocolViolation.
func (v *Verifier) ReceiveBroadcast(p *BroadcastPacket) (*TakeSignature, error) {
	if p == nil || p.Tx == nil {
		return nil, v.refuse(bverrors.ErrCodeInvalidBundle, "empty packet")
	}
	if p.Len() != BundleSize || len(p.Signatures) != BundleSize {
		return nil, v.refuse(bverrors.ErrCodeInvalidBundle,
			fmt.Sprintf("%d public keys and %d signatures, want %d", len(p.PublicKeys), len(p.Signatures), BundleSize))
	}
	tx := p.Tx
	if _, ok := v.tree.IndexOf(&tx.FromPublicKey); !ok {
		panic(&ProtocolViolation{VerifierID: v.id, Reason: fmt.Sprintf("sender of %s not in ledger", tx.Hash())})
	}
	if _, ok := v.tree.IndexOf(&tx.ToPublicKey); !ok {
		panic(&ProtocolViolation{VerifierID: v.id, Reason: fmt.Sprintf("recipient of %s not in ledger", tx.Hash())})
	}

	if err := v.tree.ValidateTransaction(tx); err != nil {
		monitoring.RecordVerifierRejection(string(bverrors.CodeOf(err)))
		logx.Warn("VERIFIER", fmt.Sprintf("verifier %d: %s failed primary validation: %v", v.id, tx.Hash(), err))
		return nil, err
	}
	if !tx.VerifySignature() {
		return nil, v.refuse(bverrors.ErrCodeInvalidSignature, bverrors.ErrMsgInvalidSignature)
	}

	bundle, err := NewBundleBuilder(v.tree).Build(tx, execctx.ExternalKeys(p.PublicKeys, p.Signatures))
	if err != nil {
		return nil, v.refuse(bverrors.ErrCodeInvalidBundle, err.Error())
	}
	if idx, ok := bundle.ValidateInputsAndSignatures(); !ok {
		return nil, v.refuse(bverrors.ErrCodeInvalidBundle, fmt.Sprintf("context %d input does not match its signature", idx))
	}

	root := bundle.TapRoot()
	sig, err := schnorr.Sign(v.key, root[:])
	if err != nil {
		return nil, v.refuse(bverrors.ErrCodeInternal, err.Error())
	}
	if !v.tree.ApplyTransaction(tx) {
		return nil, v.refuse(bverrors.ErrCodeInternal, "apply failed after validation")
	}
	v.history = append(v.history, tx)

	ts := &TakeSignature{VerifierID: v.id, PublicKey: xOnly(v.key.PubKey())}
	copy(ts.Signature[:], sig.Serialize())
	logx.Info("VERIFIER", fmt.Sprintf("verifier %d signed %s", v.id, tx.Hash()))
	return ts, nil
}

// Applied reports whether tx is the most recent transaction this verifier
// applied.
func (v *Verifier) Applied(tx *transaction.Transaction) bool {
	n := len(v.history)
	return n > 0 && v.history[n-1].Hash() == tx.Hash()
}

// Revert undoes the most recent transaction this verifier applied, when it
// is tx. It is used when the operator aborts after a partial sign-off.
func (v *Verifier) Revert(tx *transaction.Transaction) bool {
	if !v.Applied(tx) || !v.tree.UndoTransaction(tx) {
		return false
	}
	v.history = v.history[:len(v.history)-1]
	logx.Info("VERIFIER", fmt.Sprintf("verifier %d reverted %s", v.id, tx.Hash()))
	return true
}

func (v *Verifier) refuse(code bverrors.ProtocolErrorCode, message string) error {
	monitoring.RecordVerifierRejection(string(code))
	logx.Warn("VERIFIER", fmt.Sprintf("verifier %d refused broadcast: %s: %s", v.id, code, message))
	return bverrors.NewError(code, message)
}
