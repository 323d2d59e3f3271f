package ledger

import (
	"crypto/rand"
	"math"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	bverrors "github.com/mezonai/bitvm20/errors"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	key   fr.Element
	entry *types.Entry
}

func newAccount(t *testing.T, nonce uint64, balance *uint256.Int) account {
	t.Helper()
	var key fr.Element
	_, err := key.SetRandom()
	require.NoError(t, err)
	return account{key: key, entry: types.NewEntry(&key, nonce, balance)}
}

func newTree(t *testing.T, levels int, accounts ...account) *Tree {
	t.Helper()
	tree, err := New(levels)
	require.NoError(t, err)
	for i, a := range accounts {
		idx, err := tree.Assign(a.entry)
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}
	return tree
}

func fullTree(t *testing.T) (*Tree, []account) {
	t.Helper()
	accounts := make([]account, 32)
	for i := range accounts {
		accounts[i] = newAccount(t, uint64(i), uint256.NewInt(uint64(1000*i)))
	}
	return newTree(t, 5, accounts...), accounts
}

func TestNewValidatesLevels(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidLevels)
	_, err = New(MaxLevels + 1)
	assert.ErrorIs(t, err, ErrInvalidLevels)

	tree, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 8, tree.Capacity())
	assert.Equal(t, 0, tree.Size())
}

func TestAssignAndLookup(t *testing.T) {
	a := newAccount(t, 0, uint256.NewInt(10))
	b := newAccount(t, 0, uint256.NewInt(20))
	tree := newTree(t, 1, a, b)

	got, ok := tree.Get(1)
	require.True(t, ok)
	assert.True(t, got.Equal(b.entry))

	got, ok = tree.GetByPublicKey(&a.entry.PublicKey)
	require.True(t, ok)
	assert.True(t, got.Equal(a.entry))

	idx, ok := tree.IndexOf(&b.entry.PublicKey)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = tree.Get(2)
	assert.False(t, ok)
	_, ok = tree.Get(-1)
	assert.False(t, ok)

	// returned entries are copies
	got.Balance.SetUint64(0)
	again, _ := tree.Get(0)
	assert.Equal(t, uint64(10), again.Balance.Uint64())

	_, err := tree.Assign(newAccount(t, 0, uint256.NewInt(0)).entry)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.True(t, bverrors.HasCode(err, bverrors.ErrCodeCapacityExceeded))
}

func TestAssignRejectsDuplicateKey(t *testing.T) {
	a := newAccount(t, 0, uint256.NewInt(10))
	tree := newTree(t, 2, a)
	_, err := tree.Assign(a.entry)
	assert.ErrorIs(t, err, ErrDuplicatePublicKey)
	assert.Equal(t, 1, tree.Size())
}

func TestRootCoversUnusedSlots(t *testing.T) {
	empty, err := New(2)
	require.NoError(t, err)

	leaf := types.DefaultEntry().Hash()
	assert.Equal(t, pairUp(pairUp(leaf, leaf), pairUp(leaf, leaf)), empty.Root())

	a := newAccount(t, 0, uint256.NewInt(1))
	tree := newTree(t, 2, a)
	assert.NotEqual(t, empty.Root(), tree.Root())
	assert.Equal(t, pairUp(pairUp(a.entry.Hash(), leaf), pairUp(leaf, leaf)), tree.Root())
}

func TestProofSoundness(t *testing.T) {
	tree, _ := fullTree(t)
	root := tree.Root()
	for i := 0; i < 32; i++ {
		proof, ok := tree.GenerateProof(i)
		require.True(t, ok)
		assert.Len(t, proof.RootAndSiblings, 6)
		assert.True(t, proof.Validate(), "slot %d", i)
		assert.Equal(t, root, proof.RootAndSiblings[0])
	}

	_, ok := tree.GenerateProof(32)
	assert.False(t, ok)
}

func TestProofOfUnusedSlot(t *testing.T) {
	tree := newTree(t, 3, newAccount(t, 0, uint256.NewInt(1)))
	proof, ok := tree.GenerateProof(5)
	require.True(t, ok)
	assert.True(t, proof.Validate())
}

func TestProofForgeryRejected(t *testing.T) {
	tree, _ := fullTree(t)
	proof, ok := tree.GenerateProof(13)
	require.True(t, ok)

	entry := proof.Entry.Serialize()
	for i := range entry {
		forged := *proof
		mutated := entry
		mutated[i] ^= 0x01
		decoded, err := types.DeserializeEntry(mutated[:])
		if err != nil {
			// byte flip produced an invalid point, nothing to validate
			continue
		}
		forged.Entry = *decoded
		assert.False(t, forged.Validate(), "entry byte %d", i)
	}

	for depth := 0; depth < len(proof.RootAndSiblings); depth++ {
		for i := 0; i < 32; i++ {
			forged := *proof
			forged.RootAndSiblings = append([][32]byte(nil), proof.RootAndSiblings...)
			forged.RootAndSiblings[depth][i] ^= 0x80
			assert.False(t, forged.Validate(), "depth %d byte %d", depth, i)
		}
	}

	forged := *proof
	forged.EntryIndex = 32
	assert.False(t, forged.Validate())
	forged.EntryIndex = 12
	assert.False(t, forged.Validate())
}

func TestProofIsSnapshot(t *testing.T) {
	a := newAccount(t, 0, uint256.NewInt(100))
	b := newAccount(t, 0, uint256.NewInt(100))
	tree := newTree(t, 2, a, b)
	proof, _ := tree.GenerateProof(0)

	tx, ok := tree.GenerateTransaction(0, 1, uint256.NewInt(1))
	require.True(t, ok)
	require.True(t, tree.ApplyTransaction(tx))

	assert.True(t, proof.Validate())
	assert.NotEqual(t, tree.Root(), proof.Root())
}

func TestGenerateTransaction(t *testing.T) {
	a := newAccount(t, 3, uint256.NewInt(100))
	b := newAccount(t, 0, uint256.NewInt(100))
	tree := newTree(t, 2, a, b)

	tx, ok := tree.GenerateTransaction(0, 1, uint256.NewInt(7))
	require.True(t, ok)
	assert.Equal(t, uint64(3), tx.FromNonce)
	assert.True(t, tx.FromPublicKey.Equal(&a.entry.PublicKey))
	assert.False(t, tx.IsSigned())

	_, ok = tree.GenerateTransaction(0, 2, uint256.NewInt(7))
	assert.False(t, ok)

	utx := types.NewUserTransaction(0, 1, uint256.NewInt(7))
	require.NoError(t, tx.Sign(&a.key, rand.Reader))
	utx.R, utx.S = tx.R, tx.S
	resolved, ok := tree.GenerateTransactionFromUserTransaction(utx)
	require.True(t, ok)
	assert.True(t, resolved.VerifySignature())
	assert.Equal(t, tx.Serialize(), resolved.Serialize())
}

func TestApplyUndoInverse(t *testing.T) {
	tree, accounts := fullTree(t)
	before := make([]*types.Entry, 32)
	for i := range before {
		before[i], _ = tree.Get(i)
	}
	root := tree.Root()

	tx, ok := tree.GenerateTransaction(7, 20, uint256.NewInt(6000))
	require.True(t, ok)
	require.NoError(t, tx.Sign(&accounts[7].key, rand.Reader))
	require.True(t, tree.ApplyTransaction(tx))
	assert.NotEqual(t, root, tree.Root())

	require.True(t, tree.UndoTransaction(tx))
	for i := range before {
		after, _ := tree.Get(i)
		assert.True(t, before[i].Equal(after), "slot %d", i)
	}
	assert.Equal(t, root, tree.Root())
}

func TestUndoRefusesZeroNonce(t *testing.T) {
	a := newAccount(t, 0, uint256.NewInt(100))
	b := newAccount(t, 0, uint256.NewInt(100))
	tree := newTree(t, 1, a, b)
	tx, _ := tree.GenerateTransaction(0, 1, uint256.NewInt(1))
	assert.False(t, tree.UndoTransaction(tx))

	got, _ := tree.Get(1)
	assert.Equal(t, uint64(100), got.Balance.Uint64())
}

func TestPrimaryValidationNonceBoundary(t *testing.T) {
	a := newAccount(t, math.MaxUint64-1, uint256.NewInt(100))
	b := newAccount(t, 0, uint256.NewInt(0))
	tree := newTree(t, 1, a, b)

	tx, _ := tree.GenerateTransaction(0, 1, uint256.NewInt(1))
	require.True(t, tree.PrimaryValidateTransaction(tx))
	require.True(t, tree.ApplyTransaction(tx))

	from, _ := tree.Get(0)
	assert.Equal(t, uint64(math.MaxUint64), from.Nonce)

	tx, _ = tree.GenerateTransaction(0, 1, uint256.NewInt(1))
	assert.Equal(t, uint64(math.MaxUint64), tx.FromNonce)
	err := tree.ValidateTransaction(tx)
	assert.True(t, bverrors.HasCode(err, bverrors.ErrCodeNonceExhausted))
	assert.False(t, tree.ApplyTransaction(tx))
}

func TestPrimaryValidationBalanceBoundary(t *testing.T) {
	a := newAccount(t, 0, uint256.NewInt(500))
	b := newAccount(t, 0, uint256.NewInt(0))
	tree := newTree(t, 1, a, b)

	exact, _ := tree.GenerateTransaction(0, 1, uint256.NewInt(500))
	assert.NoError(t, tree.ValidateTransaction(exact))

	over, _ := tree.GenerateTransaction(0, 1, uint256.NewInt(501))
	assert.True(t, bverrors.HasCode(tree.ValidateTransaction(over), bverrors.ErrCodeInsufficientFunds))
}

func TestPrimaryValidationOverflowBoundary(t *testing.T) {
	maxMinus4 := new(uint256.Int).SetAllOne()
	maxMinus4.SubUint64(maxMinus4, 4) // 2^256 - 5

	a := newAccount(t, 0, uint256.NewInt(100))
	b := newAccount(t, 0, maxMinus4)
	tree := newTree(t, 1, a, b)

	fits, _ := tree.GenerateTransaction(0, 1, uint256.NewInt(4))
	assert.NoError(t, tree.ValidateTransaction(fits))

	wraps, _ := tree.GenerateTransaction(0, 1, uint256.NewInt(5))
	assert.True(t, bverrors.HasCode(tree.ValidateTransaction(wraps), bverrors.ErrCodeBalanceOverflow))
	assert.False(t, tree.ApplyTransaction(wraps))

	got, _ := tree.Get(0)
	assert.Equal(t, uint64(100), got.Balance.Uint64())
	assert.Equal(t, uint64(0), got.Nonce)
}

func TestPrimaryValidationFailures(t *testing.T) {
	a := newAccount(t, 2, uint256.NewInt(100))
	b := newAccount(t, 0, uint256.NewInt(0))
	tree := newTree(t, 1, a, b)

	stale, _ := tree.GenerateTransaction(0, 1, uint256.NewInt(1))
	stale.FromNonce = 1
	assert.True(t, bverrors.HasCode(tree.ValidateTransaction(stale), bverrors.ErrCodeInvalidNonce))

	unknown := transaction.NewUnsigned(newAccount(t, 0, uint256.NewInt(0)).entry, b.entry, uint256.NewInt(1))
	assert.True(t, bverrors.HasCode(tree.ValidateTransaction(unknown), bverrors.ErrCodeAccountNotFound))
	assert.False(t, tree.PrimaryValidateTransaction(unknown))
}

func TestEndToEndTransfer(t *testing.T) {
	a := newAccount(t, 0, uint256.NewInt(1_000_000_000))
	b := newAccount(t, 0, uint256.NewInt(1_000_000_000))
	tree := newTree(t, 5, a, b)

	tx, ok := tree.GenerateTransaction(0, 1, uint256.NewInt(5000))
	require.True(t, ok)
	require.NoError(t, tx.Sign(&a.key, rand.Reader))
	require.True(t, tx.VerifySignature())

	assert.True(t, tree.PrimaryValidateTransaction(tx))
	require.True(t, tree.ApplyTransaction(tx))

	from, _ := tree.Get(0)
	to, _ := tree.Get(1)
	assert.Equal(t, uint64(999_995_000), from.Balance.Uint64())
	assert.Equal(t, uint64(1), from.Nonce)
	assert.Equal(t, uint64(1_000_005_000), to.Balance.Uint64())
	assert.Equal(t, uint64(0), to.Nonce)
}

func pairUp(left, right [32]byte) [32]byte {
	return collapse([][32]byte{left, right})[0]
}
