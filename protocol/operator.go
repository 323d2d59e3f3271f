package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	bverrors "github.com/mezonai/bitvm20/errors"
	"github.com/mezonai/bitvm20/execctx"
	"github.com/mezonai/bitvm20/ledger"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/monitoring"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
)

// TakeSignature is a verifier's schnorr signature over the tapscript root of
// a bundle. Producing it commits the verifier to the transaction.
type TakeSignature struct {
	VerifierID int
	PublicKey  [schnorr.PubKeyBytesLen]byte
	Signature  [schnorr.SignatureSize]byte
}

// Verify checks the signature against root.
func (ts *TakeSignature) Verify(root chainhash.Hash) bool {
	pk, err := schnorr.ParsePubKey(ts.PublicKey[:])
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(ts.Signature[:])
	if err != nil {
		return false
	}
	return sig.Verify(root[:], pk)
}

// DefaultChallengeBlocks is how many blocks a committed transaction stays
// open to challenge, one day of bitcoin blocks.
const DefaultChallengeBlocks = 144

// ChallengeableTransaction is a committed transaction together with the
// signatures that allow it to be challenged on chain within ChallengeBlocks
// blocks of its commitment.
type ChallengeableTransaction struct {
	Tx                 *transaction.Transaction
	Packet             *BroadcastPacket
	TapRoot            chainhash.Hash
	VerifierSignatures []*TakeSignature
	ChallengeBlocks    int
}

type heldTransaction struct {
	tx      *transaction.Transaction
	packet  *BroadcastPacket
	tapRoot chainhash.Hash
}

// Operator owns the authoritative ledger. It holds at most one transaction
// while waiting for verifier signatures.
type Operator struct {
	tree      *ledger.Tree
	rand      io.Reader
	verifiers map[[schnorr.PubKeyBytesLen]byte]struct{}

	challengeBlocks int
	onHold          *heldTransaction
	history         []*ChallengeableTransaction
	state           State
	events          *EventBus
}

var ErrAborted = errors.New("protocol: transaction aborted")

// NewOperator draws one-time keys and signing nonces from rand. When
// verifier keys are given, every one of them and no other key must sign
// before a transaction is applied; otherwise any non-empty set of valid signatures is accepted.
func NewOperator(tree *ledger.Tree, rand io.Reader, verifierKeys ...*btcec.PublicKey) *Operator {
	op := &Operator{
		tree:            tree,
		rand:            rand,
		verifiers:       make(map[[schnorr.PubKeyBytesLen]byte]struct{}, len(verifierKeys)),
		state:           StateIdle,
		challengeBlocks: DefaultChallengeBlocks,
	}
	for _, pk := range verifierKeys {
		op.verifiers[xOnly(pk)] = struct{}{}
	}
	return op
}

func xOnly(pk *btcec.PublicKey) [schnorr.PubKeyBytesLen]byte {
	var out [schnorr.PubKeyBytesLen]byte
	copy(out[:], schnorr.SerializePubKey(pk))
	return out
}

// SetEventBus publishes every later state change on bus.
func (op *Operator) SetEventBus(bus *EventBus) {
	op.events = bus
}

// SetChallengeBlocks sets the challenge window recorded on later commits.
func (op *Operator) SetChallengeBlocks(n int) {
	op.challengeBlocks = n
}

func (op *Operator) publish(event Event) {
	if op.events != nil {
		op.events.Publish(event)
	}
}

func (op *Operator) Tree() *ledger.Tree {
	return op.tree
}

func (op *Operator) State() State {
	return op.state
}

func (op *Operator) History() []*ChallengeableTransaction {
	return append([]*ChallengeableTransaction(nil), op.history...)
}

// OnHold returns the transaction waiting for verifier signatures, if any.
func (op *Operator) OnHold() (*transaction.Transaction, bool) {
	if op.onHold == nil {
		return nil, false
	}
	return op.onHold.tx, true
}

// PostTransaction resolves and validates utx, builds its bundle and puts it
// on hold. The returned packet is what verifiers need to reproduce the
// bundle. The ledger is unchanged until ReceiveVerifierSignatures.
func (op *Operator) PostTransaction(utx *types.UserTransaction) (*BroadcastPacket, error) {
	if op.onHold != nil {
		monitoring.RecordRejectedTx(monitoring.TxOnHold)
		return nil, bverrors.NewError(bverrors.ErrCodeTransactionOnHold, bverrors.ErrMsgTransactionOnHold)
	}
	monitoring.IncreaseReceivedTxCount()
	op.state = StateValidating

	tx, ok := op.tree.GenerateTransactionFromUserTransaction(utx)
	if !ok {
		return nil, op.reject("", bverrors.NewError(bverrors.ErrCodeAccountNotFound,
			fmt.Sprintf("%s: slots %d -> %d", bverrors.ErrMsgAccountNotFound, utx.FromUserID, utx.ToUserID)))
	}
	if err := op.tree.ValidateTransaction(tx); err != nil {
		return nil, op.reject(tx.Hash(), err)
	}
	if !tx.VerifySignature() {
		return nil, op.reject(tx.Hash(), bverrors.NewError(bverrors.ErrCodeInvalidSignature, bverrors.ErrMsgInvalidSignature))
	}

	bundle, err := NewBundleBuilder(op.tree).Build(tx, execctx.RandomKeys(op.rand))
	if err != nil {
		return nil, op.reject(tx.Hash(), bverrors.NewError(bverrors.ErrCodeInternal, err.Error()))
	}
	packet := NewBroadcastPacket(tx, bundle)
	op.onHold = &heldTransaction{tx: tx, packet: packet, tapRoot: bundle.TapRoot()}
	logx.Info("OPERATOR", fmt.Sprintf("holding %s with %d contexts, tap root %s", tx.Hash(), bundle.Len(), op.onHold.tapRoot))
	op.publish(NewTransactionHeld(tx, op.onHold.tapRoot))
	return packet, nil
}

func (op *Operator) reject(txHash string, err error) error {
	op.state = StateRejected
	op.publish(NewTransactionRejected(txHash, err))
	monitoring.RecordRejectedTx(rejectedReason(bverrors.CodeOf(err)))
	logx.Warn("OPERATOR", fmt.Sprintf("transaction rejected: %v", err))
	return err
}

// ReceiveVerifierSignatures applies the held transaction once sigs are valid
// take signatures over its bundle. It returns false and keeps the
// transaction on hold otherwise.
func (op *Operator) ReceiveVerifierSignatures(sigs []*TakeSignature) bool {
	if op.onHold == nil {
		logx.Warn("OPERATOR", "verifier signatures received with nothing on hold")
		return false
	}
	if len(sigs) == 0 {
		return false
	}
	signed := make(map[[schnorr.PubKeyBytesLen]byte]struct{}, len(sigs))
	for _, sig := range sigs {
		if sig == nil || !sig.Verify(op.onHold.tapRoot) {
			logx.Warn("OPERATOR", fmt.Sprintf("invalid take signature for %s", op.onHold.tx.Hash()))
			return false
		}
		if _, known := op.verifiers[sig.PublicKey]; len(op.verifiers) > 0 && !known {
			logx.Warn("OPERATOR", fmt.Sprintf("take signature from unknown verifier %x", sig.PublicKey))
			return false
		}
		signed[sig.PublicKey] = struct{}{}
	}
	for pk := range op.verifiers {
		if _, ok := signed[pk]; !ok {
			logx.Warn("OPERATOR", fmt.Sprintf("missing signature from verifier %x", pk))
			return false
		}
	}

	held := op.onHold
	op.onHold = nil
	if !op.tree.ApplyTransaction(held.tx) {
		op.state = StateRejected
		op.publish(NewTransactionRejected(held.tx.Hash(), fmt.Errorf("apply %s failed", held.tx.Hash())))
		return false
	}
	committed := &ChallengeableTransaction{
		Tx:                 held.tx,
		Packet:             held.packet,
		TapRoot:            held.tapRoot,
		VerifierSignatures: sigs,
		ChallengeBlocks:    op.challengeBlocks,
	}
	op.history = append(op.history, committed)
	op.state = StateCommitted
	op.publish(NewTransactionCommitted(committed))
	monitoring.IncreaseCommittedTxCount()
	logx.Info("OPERATOR", fmt.Sprintf("committed %s with %d verifier signatures", held.tx.Hash(), len(sigs)))
	return true
}

// AbortTransaction drops the held transaction without touching the ledger.
func (op *Operator) AbortTransaction() {
	if op.onHold == nil {
		return
	}
	txHash := op.onHold.tx.Hash()
	logx.Warn("OPERATOR", fmt.Sprintf("aborted %s", txHash))
	op.onHold = nil
	op.state = StateRejected
	op.publish(NewTransactionRejected(txHash, ErrAborted))
}

func rejectedReason(code bverrors.ProtocolErrorCode) monitoring.TxRejectedReason {
	switch code {
	case bverrors.ErrCodeAccountNotFound:
		return monitoring.TxAccountNotFound
	case bverrors.ErrCodeInvalidNonce:
		return monitoring.TxInvalidNonce
	case bverrors.ErrCodeNonceExhausted:
		return monitoring.TxNonceExhausted
	case bverrors.ErrCodeInsufficientFunds:
		return monitoring.TxInsufficientBalance
	case bverrors.ErrCodeBalanceOverflow:
		return monitoring.TxBalanceOverflow
	case bverrors.ErrCodeInvalidSignature:
		return monitoring.TxInvalidSignature
	case bverrors.ErrCodeTransactionOnHold:
		return monitoring.TxOnHold
	}
	return monitoring.TxRejectedUnknown
}
