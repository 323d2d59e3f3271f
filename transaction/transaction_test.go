package transaction

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	"github.com/mezonai/bitvm20/codec"
	"github.com/mezonai/bitvm20/execctx"
	"github.com/mezonai/bitvm20/jsonx"
	"github.com/mezonai/bitvm20/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccounts(t *testing.T) (fr.Element, *types.Entry, *types.Entry) {
	t.Helper()
	var fromKey, toKey fr.Element
	_, err := fromKey.SetRandom()
	require.NoError(t, err)
	_, err = toKey.SetRandom()
	require.NoError(t, err)
	from := types.NewEntry(&fromKey, 0, uint256.NewInt(1_000_000_000))
	to := types.NewEntry(&toKey, 0, uint256.NewInt(1_000_000_000))
	return fromKey, from, to
}

func signedTransaction(t *testing.T) *Transaction {
	t.Helper()
	key, from, to := newAccounts(t)
	tx := NewUnsigned(from, to, uint256.NewInt(5000))
	require.NoError(t, tx.Sign(&key, rand.Reader))
	return tx
}

func TestSignAndVerify(t *testing.T) {
	tx := signedTransaction(t)
	assert.True(t, tx.IsSigned())
	assert.True(t, tx.VerifySignature())
}

func TestUnsignedFailsVerification(t *testing.T) {
	_, from, to := newAccounts(t)
	tx := NewUnsigned(from, to, uint256.NewInt(1))
	assert.False(t, tx.IsSigned())
	assert.False(t, tx.VerifySignature())

	signed := signedTransaction(t)
	zeroR := *signed
	zeroR.R = bn254.G1Affine{}
	assert.False(t, zeroR.VerifySignature())

	zeroS := *signed
	zeroS.S.SetZero()
	assert.False(t, zeroS.VerifySignature())
}

func TestTamperedFieldsFailVerification(t *testing.T) {
	tx := signedTransaction(t)

	tampered := *tx
	tampered.Value.AddUint64(&tampered.Value, 1)
	assert.False(t, tampered.VerifySignature())

	tampered = *tx
	tampered.FromNonce++
	assert.False(t, tampered.VerifySignature())

	tampered = *tx
	tampered.ToPublicKey, tampered.FromPublicKey = tx.FromPublicKey, tx.ToPublicKey
	assert.False(t, tampered.VerifySignature())
}

func TestSignWithDeterministicReader(t *testing.T) {
	key, from, to := newAccounts(t)
	a := NewUnsigned(from, to, uint256.NewInt(10))
	b := NewUnsigned(from, to, uint256.NewInt(10))
	seed := bytes.Repeat([]byte{0x42}, 64)
	require.NoError(t, a.Sign(&key, bytes.NewReader(seed)))
	require.NoError(t, b.Sign(&key, bytes.NewReader(seed)))
	assert.Equal(t, a.Serialize(), b.Serialize())

	assert.ErrorIs(t, a.Sign(&key, bytes.NewReader(make([]byte, 64))), ErrZeroNonce)
	assert.Error(t, a.Sign(&key, bytes.NewReader(nil)))
}

func TestSerializeLayout(t *testing.T) {
	tx := signedTransaction(t)
	ser := tx.Serialize()
	require.Len(t, ser, 292)

	body := tx.SerializeWithoutSignature()
	assert.Equal(t, body[:], ser[:BodySize])
	from := codec.SerializeG1(&tx.FromPublicKey)
	assert.Equal(t, from[:], ser[:72])
	rx := codec.SerializeFp(&tx.R.X)
	assert.Equal(t, rx[:], ser[220:256])

	decoded, err := Deserialize(ser[:])
	require.NoError(t, err)
	assert.Equal(t, ser, decoded.Serialize())
	assert.True(t, decoded.VerifySignature())
	assert.Equal(t, tx.Hash(), decoded.Hash())

	_, err = Deserialize(ser[:Size-1])
	assert.ErrorIs(t, err, codec.ErrInvalidLength)
}

func TestMarshalJSON(t *testing.T) {
	tx := signedTransaction(t)
	raw, err := jsonx.Marshal(tx)
	require.NoError(t, err)

	var summary map[string]interface{}
	require.NoError(t, jsonx.Unmarshal(raw, &summary))
	assert.Equal(t, "5000", summary["value"])
	assert.Equal(t, tx.Hash(), summary["hash"])
	assert.Equal(t, true, summary["signed"])
}

func TestMulTrace(t *testing.T) {
	_, _, g, _ := bn254.Generators()
	k := fr.NewElement(0b1011)
	trace := NewMulTrace(&g, &k)

	var want bn254.G1Affine
	want.ScalarMultiplication(&g, bigOf(&k))
	result := trace.Result()
	assert.True(t, result.Equal(&want))

	var four bn254.G1Affine
	four.ScalarMultiplication(&g, bigOf(ptr(fr.NewElement(4))))
	assert.True(t, trace.Powers[2].Equal(&four))
	// bit 2 is clear
	assert.True(t, trace.Accumulators[2].Equal(&trace.Accumulators[1]))
	prev := trace.previous(0)
	assert.True(t, prev.IsInfinity())
}

func TestSignatureTraceHolds(t *testing.T) {
	tx := signedTransaction(t)
	trace := tx.SignatureTrace()
	assert.True(t, trace.Holds(&tx.R))

	forged := *tx
	forged.S.SetOne()
	assert.False(t, forged.SignatureTrace().Holds(&forged.R))
}

func TestSignatureContextsForValidSignature(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and executes every signature step")
	}
	tx := signedTransaction(t)
	contexts, err := tx.ContextsForSignatureVerification(execctx.RandomKeys(rand.Reader))
	require.NoError(t, err)
	require.Len(t, contexts, SignatureStepCount)
	assert.Equal(t, 1018, SignatureStepCount)

	for i, ctx := range contexts {
		res := ctx.Execute()
		require.NoError(t, res.Err, "step %d", i)
		require.False(t, res.Success, "step %d disproved an honest claim", i)
	}
}

func TestSignatureContextsDisproveForgery(t *testing.T) {
	tx := signedTransaction(t)
	tx.S.SetUint64(12345)

	contexts, err := tx.ContextsForSignatureVerification(execctx.RandomKeys(rand.Reader))
	require.NoError(t, err)

	// the steps are internally consistent, only the final equation breaks
	for _, i := range []int{0, 1, 2, StepsPerChain, StepsPerChain + 1, SignatureStepCount - 2} {
		res := contexts[i].Execute()
		require.NoError(t, res.Err, "step %d", i)
		assert.False(t, res.Success, "step %d", i)
	}
	res := contexts[SignatureStepCount-1].Execute()
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
}

func TestSignatureStepsRejectWrongClaims(t *testing.T) {
	tx := signedTransaction(t)
	trace := tx.SignatureTrace()
	keys := execctx.RandomKeys(rand.Reader)

	// wrong challenge
	wrongE := trace.Challenge
	wrongE.Add(&wrongE, ptr(fr.One()))
	ctx, err := execctx.Build(keys, tx.hashStepInput(&wrongE), execctx.GeneratorFunc(HashStepScript))
	require.NoError(t, err)
	assert.True(t, ctx.Execute().Success)

	// wrong doubling
	chain := trace.ChallengeMul
	bad := concatPoints(&chain.Powers[3], &chain.Powers[3])
	ctx, err = execctx.Build(keys, bad, execctx.GeneratorFunc(DoubleStepScript))
	require.NoError(t, err)
	assert.True(t, ctx.Execute().Success)

	// accumulate step executed under the wrong bit index
	for i := 0; i < 3; i++ {
		ctx, err = execctx.Build(keys, chain.accumulateInput(i), accumulateGenerator(i+1))
		require.NoError(t, err)
		res := ctx.Execute()
		require.NoError(t, res.Err)
		assert.True(t, res.Success, fmt.Sprintf("index %d", i))
	}

	// wrong accumulator
	input := chain.accumulateInput(5)
	copy(input[len(input)-codec.PointSize:], make([]byte, codec.PointSize))
	if !chain.Accumulators[5].IsInfinity() {
		ctx, err = execctx.Build(keys, input, accumulateGenerator(5))
		require.NoError(t, err)
		assert.True(t, ctx.Execute().Success)
	}
}

func ptr[T any](v T) *T {
	return &v
}
