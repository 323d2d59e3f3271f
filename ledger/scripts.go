package ledger

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/mezonai/bitvm20/codec"
	"github.com/mezonai/bitvm20/execctx"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/script"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
	"github.com/mezonai/bitvm20/winternitz"
)

var ErrInvalidProof = errors.New("ledger: proof does not validate")

// BalanceInputSize is value || to.balance || from.balance || from.nonce ||
// tx.from_nonce.
const BalanceInputSize = 3*codec.U256Size + 2*codec.U64Size

// ContextsForRootValidation commits to the current root. The script embeds
// the root and succeeds iff the signed root differs from it.
func (t *Tree) ContextsForRootValidation(keys execctx.KeySource) ([]*execctx.Context, error) {
	root := t.Root()
	gen := execctx.ParamGenerator{
		Params: [][]byte{root[:]},
		Fn: func(pk winternitz.PublicKey, params [][]byte) script.Script {
			return RootValidationScript(pk, params[0])
		},
	}
	ctx, err := execctx.Build(keys, root[:], gen)
	if err != nil {
		return nil, fmt.Errorf("root validation: %w", err)
	}
	return []*execctx.Context{ctx}, nil
}

func RootValidationScript(pk winternitz.PublicKey, root []byte) script.Script {
	b := script.NewBuilder().
		AddScript(execctx.VerifyInputData(pk, len(root))).
		AddOp(txscript.OP_0).AddOp(txscript.OP_TOALTSTACK)
	for _, r := range root {
		b.AddInt(int64(r)).
			AddOp(txscript.OP_EQUAL).
			AddOp(txscript.OP_FROMALTSTACK).
			AddOp(txscript.OP_ADD).
			AddOp(txscript.OP_TOALTSTACK)
	}
	return b.AddOp(txscript.OP_FROMALTSTACK).
		AddInt(int64(len(root))).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_NOT).
		Script()
}

// ProofInput is the index bits (leaf level first), the entry, the siblings
// from the leaf up and the root.
func (p *Proof) ProofInput() []byte {
	levels := p.Levels()
	input := make([]byte, 0, levels+types.EntrySize+(levels+1)*hashx.Size)
	for depth := 0; depth < levels; depth++ {
		input = append(input, byte((p.EntryIndex>>depth)&1))
	}
	entry := p.Entry.Serialize()
	input = append(input, entry[:]...)
	for depth := 1; depth <= levels; depth++ {
		input = append(input, p.RootAndSiblings[depth][:]...)
	}
	root := p.Root()
	return append(input, root[:]...)
}

// ContextsForProofValidation commits to the proof. The script recomputes the
// root from the signed path and succeeds iff it differs from the signed root.
func (p *Proof) ContextsForProofValidation(keys execctx.KeySource) ([]*execctx.Context, error) {
	if !p.Validate() {
		return nil, fmt.Errorf("%w: slot %d", ErrInvalidProof, p.EntryIndex)
	}
	levels := p.Levels()
	gen := execctx.GeneratorFunc(func(pk winternitz.PublicKey) script.Script {
		return ProofValidationScript(pk, levels)
	})
	ctx, err := execctx.Build(keys, p.ProofInput(), gen)
	if err != nil {
		return nil, fmt.Errorf("proof validation: %w", err)
	}
	return []*execctx.Context{ctx}, nil
}

func ProofValidationScript(pk winternitz.PublicKey, levels int) script.Script {
	inputSize := levels + types.EntrySize + (levels+1)*hashx.Size
	b := script.NewBuilder().AddScript(execctx.VerifyInputData(pk, inputSize))

	// index bits to the alt stack, leaf level on top
	for i := 0; i < levels; i++ {
		b.AddInt(int64(levels - 1 - i)).AddOp(txscript.OP_ROLL).AddOp(txscript.OP_TOALTSTACK)
	}

	b.AddScript(script.Blake3(types.EntrySize))

	// odd index: bring the sibling above the current hash
	bringSibling := script.NewBuilder().AddInt(2*hashx.Size - 1).AddOp(txscript.OP_ROLL).Script()
	for depth := 0; depth < levels; depth++ {
		b.AddOp(txscript.OP_FROMALTSTACK).
			AddOp(txscript.OP_IF).
			AddRepeat(hashx.Size, bringSibling).
			AddOp(txscript.OP_ENDIF).
			AddScript(script.Blake3(2 * hashx.Size))
	}

	b.AddOp(txscript.OP_0).AddOp(txscript.OP_TOALTSTACK)
	for i := 0; i < hashx.Size; i++ {
		b.AddInt(int64(hashx.Size - i)).
			AddOp(txscript.OP_ROLL).
			AddOp(txscript.OP_EQUAL).
			AddOp(txscript.OP_FROMALTSTACK).
			AddOp(txscript.OP_ADD).
			AddOp(txscript.OP_TOALTSTACK)
	}
	return b.AddOp(txscript.OP_FROMALTSTACK).
		AddInt(hashx.Size).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_NOT).
		Script()
}

// BalanceInput lays out the operands of the balance and nonce checks.
func BalanceInput(tx *transaction.Transaction, from, to *types.Entry) []byte {
	value := codec.SerializeU256(&tx.Value)
	toBalance := codec.SerializeU256(&to.Balance)
	fromBalance := codec.SerializeU256(&from.Balance)
	fromNonce := codec.SerializeU64(from.Nonce)
	txNonce := codec.SerializeU64(tx.FromNonce)

	input := make([]byte, 0, BalanceInputSize)
	input = append(input, value[:]...)
	input = append(input, toBalance[:]...)
	input = append(input, fromBalance[:]...)
	input = append(input, fromNonce[:]...)
	return append(input, txNonce[:]...)
}

// ContextsForPrimaryValidation commits to the operands of the primary
// validation. The script succeeds iff the transfer overflows the recipient,
// exceeds the sender balance, the sender nonce is exhausted or the nonces
// differ.
func (t *Tree) ContextsForPrimaryValidation(tx *transaction.Transaction, keys execctx.KeySource) ([]*execctx.Context, error) {
	from, to, err := t.endpoints(tx)
	if err != nil {
		return nil, err
	}
	ctx, err := execctx.Build(keys, BalanceInput(tx, from, to), execctx.GeneratorFunc(BalanceValidationScript))
	if err != nil {
		return nil, fmt.Errorf("primary validation: %w", err)
	}
	return []*execctx.Context{ctx}, nil
}

func BalanceValidationScript(pk winternitz.PublicKey) script.Script {
	const (
		valueAt       = 0
		toBalanceAt   = valueAt + codec.U256Size
		fromBalanceAt = toBalanceAt + codec.U256Size
		fromNonceAt   = fromBalanceAt + codec.U256Size
		txNonceAt     = fromNonceAt + codec.U64Size
	)
	b := script.NewBuilder().AddScript(execctx.VerifyInputData(pk, BalanceInputSize))

	// carry out of to.balance + value
	b.AddOp(txscript.OP_0)
	for i := 0; i < codec.U256Size; i++ {
		b.AddInt(int64(valueAt + i + 1)).AddOp(txscript.OP_PICK).
			AddOp(txscript.OP_ADD).
			AddInt(int64(toBalanceAt + i + 1)).AddOp(txscript.OP_PICK).
			AddOp(txscript.OP_ADD).
			AddInt(256).AddOp(txscript.OP_GREATERTHANOREQUAL)
	}
	b.AddOp(txscript.OP_TOALTSTACK)

	// borrow out of from.balance - value
	b.AddOp(txscript.OP_0)
	for i := 0; i < codec.U256Size; i++ {
		b.AddInt(int64(fromBalanceAt + i + 1)).AddOp(txscript.OP_PICK).
			AddOp(txscript.OP_SWAP).AddOp(txscript.OP_SUB).
			AddInt(int64(valueAt + i + 1)).AddOp(txscript.OP_PICK).
			AddOp(txscript.OP_SUB).
			AddOp(txscript.OP_0).AddOp(txscript.OP_LESSTHAN)
	}
	b.AddOp(txscript.OP_TOALTSTACK)

	// sender nonce at its maximum
	b.AddOp(txscript.OP_1)
	for i := 0; i < codec.U64Size; i++ {
		b.AddInt(int64(fromNonceAt + i + 1)).AddOp(txscript.OP_PICK).
			AddInt(0xff).AddOp(txscript.OP_EQUAL).
			AddOp(txscript.OP_BOOLAND)
	}
	b.AddOp(txscript.OP_TOALTSTACK)

	// nonce mismatch
	b.AddOp(txscript.OP_0)
	for i := 0; i < codec.U64Size; i++ {
		b.AddInt(int64(fromNonceAt + i + 1)).AddOp(txscript.OP_PICK).
			AddInt(int64(txNonceAt + i + 2)).AddOp(txscript.OP_PICK).
			AddOp(txscript.OP_NUMNOTEQUAL).
			AddOp(txscript.OP_BOOLOR)
	}
	for i := 0; i < 3; i++ {
		b.AddOp(txscript.OP_FROMALTSTACK).AddOp(txscript.OP_BOOLOR)
	}

	return b.AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.PopBytes(BalanceInputSize)).
		AddOp(txscript.OP_FROMALTSTACK).
		Script()
}
