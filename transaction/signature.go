package transaction

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/txscript"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/mezonai/bitvm20/codec"
	"github.com/mezonai/bitvm20/execctx"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/script"
	"github.com/mezonai/bitvm20/winternitz"
)

const (
	// ScalarBits covers every scalar below the group order.
	ScalarBits = 254

	// StepsPerChain is one accumulate and one double step per bit.
	StepsPerChain = 2 * ScalarBits

	// SignatureStepCount is the hash step, the e·P and s·G chains and the
	// final comparison.
	SignatureStepCount = 1 + 2*StepsPerChain + 1

	hashStepInputSize   = codec.FieldElementSize + BodySize + codec.FieldElementSize
	doubleStepInputSize = 2 * codec.PointSize
	accStepInputSize    = codec.FieldElementSize + 1 + 3*codec.PointSize
	finalStepInputSize  = 3 * codec.PointSize
)

// MulTrace records the double-and-add evaluation of Scalar·Powers[0], least
// significant bit first. Powers[i] = 2^i·P and Accumulators[i] is the sum of
// the powers selected by bits 0..i.
type MulTrace struct {
	Scalar       fr.Element
	Powers       [ScalarBits + 1]bn254.G1Affine
	Accumulators [ScalarBits]bn254.G1Affine
}

func NewMulTrace(base *bn254.G1Affine, scalar *fr.Element) *MulTrace {
	t := &MulTrace{Scalar: *scalar}
	t.Powers[0] = *base
	k := bigOf(scalar)

	var acc bn254.G1Affine
	for i := 0; i < ScalarBits; i++ {
		if k.Bit(i) == 1 {
			acc.Add(&acc, &t.Powers[i])
		}
		t.Accumulators[i] = acc
		t.Powers[i+1].Add(&t.Powers[i], &t.Powers[i])
	}
	return t
}

// Result is Scalar·Powers[0].
func (t *MulTrace) Result() bn254.G1Affine {
	return t.Accumulators[ScalarBits-1]
}

// previous returns the accumulator before step i; the identity for i = 0.
func (t *MulTrace) previous(i int) bn254.G1Affine {
	if i == 0 {
		return bn254.G1Affine{}
	}
	return t.Accumulators[i-1]
}

// SignatureTrace holds every intermediate value of the verification
// equation R - s·G == e·P.
type SignatureTrace struct {
	Challenge    fr.Element
	ChallengeMul *MulTrace // e·P
	ResponseMul  *MulTrace // s·G
}

func (tx *Transaction) SignatureTrace() *SignatureTrace {
	g := generator()
	e := tx.Challenge()
	return &SignatureTrace{
		Challenge:    e,
		ChallengeMul: NewMulTrace(&tx.FromPublicKey, &e),
		ResponseMul:  NewMulTrace(&g, &tx.S),
	}
}

// Holds reports whether R - s·G equals e·P on the traced values.
func (st *SignatureTrace) Holds(r *bn254.G1Affine) bool {
	sG := st.ResponseMul.Result()
	eP := st.ChallengeMul.Result()
	var neg, lhs bn254.G1Affine
	neg.Neg(&sG)
	lhs.Add(r, &neg)
	return lhs.Equal(&eP)
}

// ContextsForSignatureVerification lowers signature verification into
// SignatureStepCount contexts: the challenge hash, the e·P chain, the s·G
// chain and the final comparison. Each script succeeds iff the signed claim
// of its step is wrong.
func (tx *Transaction) ContextsForSignatureVerification(keys execctx.KeySource) ([]*execctx.Context, error) {
	trace := tx.SignatureTrace()
	contexts := make([]*execctx.Context, 0, SignatureStepCount)

	add := func(input []byte, gen execctx.Generator) error {
		ctx, err := execctx.Build(keys, input, gen)
		if err != nil {
			return fmt.Errorf("signature step %d: %w", len(contexts), err)
		}
		contexts = append(contexts, ctx)
		return nil
	}

	if err := add(tx.hashStepInput(&trace.Challenge), execctx.GeneratorFunc(HashStepScript)); err != nil {
		return nil, err
	}
	for _, chain := range []*MulTrace{trace.ChallengeMul, trace.ResponseMul} {
		for i := 0; i < ScalarBits; i++ {
			if err := add(chain.accumulateInput(i), accumulateGenerator(i)); err != nil {
				return nil, err
			}
			if err := add(chain.doubleInput(i), execctx.GeneratorFunc(DoubleStepScript)); err != nil {
				return nil, err
			}
		}
	}
	sG := trace.ResponseMul.Result()
	eP := trace.ChallengeMul.Result()
	if err := add(concatPoints(&tx.R, &sG, &eP), execctx.GeneratorFunc(FinalStepScript)); err != nil {
		return nil, err
	}
	return contexts, nil
}

func (tx *Transaction) hashStepInput(e *fr.Element) []byte {
	rx := codec.SerializeFp(&tx.R.X)
	body := tx.SerializeWithoutSignature()
	es := codec.SerializeFr(e)
	input := make([]byte, 0, hashStepInputSize)
	input = append(input, rx[:]...)
	input = append(input, body[:]...)
	return append(input, es[:]...)
}

func (t *MulTrace) accumulateInput(i int) []byte {
	scalar := codec.SerializeFr(&t.Scalar)
	prev := t.previous(i)
	input := make([]byte, 0, accStepInputSize)
	input = append(input, scalar[:]...)
	input = append(input, byte(i))
	return append(input, concatPoints(&t.Powers[i], &prev, &t.Accumulators[i])...)
}

func (t *MulTrace) doubleInput(i int) []byte {
	return concatPoints(&t.Powers[i], &t.Powers[i+1])
}

func concatPoints(points ...*bn254.G1Affine) []byte {
	out := make([]byte, 0, len(points)*codec.PointSize)
	for _, p := range points {
		ser := codec.SerializeG1(p)
		out = append(out, ser[:]...)
	}
	return out
}

// HashStepScript disproves a claimed challenge e for Rx || body.
func HashStepScript(pk winternitz.PublicKey) script.Script {
	return script.NewBuilder().
		AddScript(execctx.VerifyInputData(pk, hashStepInputSize)).
		AddScript(script.Blake3(codec.FieldElementSize + BodySize)).
		AddScript(script.Pack(hashx.Size)).
		AddOp(script.OP_HASHTOSCALAR).
		AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.Pack(codec.FieldElementSize)).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_NOT).
		Script()
}

func accumulateGenerator(i int) execctx.Generator {
	return execctx.ParamGenerator{
		Params: [][]byte{{byte(i)}},
		Fn: func(pk winternitz.PublicKey, params [][]byte) script.Script {
			return AccumulateStepScript(pk, int(params[0][0]))
		},
	}
}

// AccumulateStepScript disproves A_i = A_{i-1} + bit_i(scalar)·P_i, or a
// bit index other than i.
func AccumulateStepScript(pk winternitz.PublicKey, i int) script.Script {
	return script.NewBuilder().
		AddScript(execctx.VerifyInputData(pk, accStepInputSize)).
		AddScript(script.Pack(codec.FieldElementSize)).
		AddOp(txscript.OP_SWAP).
		AddOp(txscript.OP_DUP).AddInt(int64(i)).AddOp(txscript.OP_NUMNOTEQUAL).
		AddOp(txscript.OP_TOALTSTACK).
		AddOp(script.OP_SCALARBIT).
		AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(txscript.OP_IF).
		AddOp(script.OP_G1ADD).
		AddOp(txscript.OP_ELSE).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_ENDIF).
		AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_NOT).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(txscript.OP_BOOLOR).
		Script()
}

// DoubleStepScript disproves P_{i+1} = 2·P_i.
func DoubleStepScript(pk winternitz.PublicKey) script.Script {
	return script.NewBuilder().
		AddScript(execctx.VerifyInputData(pk, doubleStepInputSize)).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(script.OP_G1DOUBLE).
		AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_NOT).
		Script()
}

// FinalStepScript disproves R - s·G = e·P.
func FinalStepScript(pk winternitz.PublicKey) script.Script {
	return script.NewBuilder().
		AddScript(execctx.VerifyInputData(pk, finalStepInputSize)).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(script.OP_G1NEG).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(script.OP_G1ADD).
		AddOp(txscript.OP_TOALTSTACK).
		AddScript(script.Pack(codec.PointSize)).
		AddOp(txscript.OP_FROMALTSTACK).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_NOT).
		Script()
}

func bigOf(e *fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}
