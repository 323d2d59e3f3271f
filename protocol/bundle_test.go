package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/mezonai/bitvm20/execctx"
	"github.com/mezonai/bitvm20/jsonx"
	"github.com/mezonai/bitvm20/ledger"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTx(t *testing.T, p party, tree *ledger.Tree) *transaction.Transaction {
	t.Helper()
	utx := p.transfer(t, tree, 0, 1, 42)
	tx, ok := tree.GenerateTransactionFromUserTransaction(utx)
	require.True(t, ok)
	require.True(t, tx.VerifySignature())
	return tx
}

func TestBundleLayout(t *testing.T) {
	p := newParty(2)
	tree := p.replica(t)
	tx := signedTx(t, p, tree)

	bundle, err := NewBundleBuilder(tree).Build(tx, execctx.RandomKeys(NewSeededReader([]byte("bundle"))))
	require.NoError(t, err)
	require.Equal(t, BundleSize, bundle.Len())
	assert.Equal(t, 1022, BundleSize)

	leaves := bundle.Leaves()
	require.Len(t, leaves, BundleSize)
	for _, leaf := range leaves {
		assert.Equal(t, 1, leaf.RequiredSignatures)
	}
	root := tree.Root()
	rootPK := bundle.Contexts[RootLeaf].PublicKey()
	assert.True(t, leaves[RootLeaf].Script.Equal(ledger.RootValidationScript(rootPK, root[:])))
	assert.True(t, leaves[BalanceLeaf].Script.Equal(ledger.BalanceValidationScript(bundle.Contexts[BalanceLeaf].PublicKey())))
	assert.True(t, leaves[SignatureLeaf].Script.Equal(transaction.HashStepScript(bundle.Contexts[SignatureLeaf].PublicKey())))

	idx, ok := bundle.ValidateInputsAndSignatures()
	assert.True(t, ok, "context %d", idx)

	// none of the honest claims can be disproved
	for _, i := range []int{RootLeaf, FromProofLeaf, ToProofLeaf, BalanceLeaf, SignatureLeaf, BundleSize - 1} {
		res := bundle.Contexts[i].Execute()
		assert.False(t, res.Success, "context %d", i)
	}
}

func TestBundleRebuiltFromPacket(t *testing.T) {
	p := newParty(2)
	tree := p.replica(t)
	tx := signedTx(t, p, tree)

	bundle, err := NewBundleBuilder(tree).Build(tx, execctx.RandomKeys(NewSeededReader([]byte("bundle"))))
	require.NoError(t, err)
	packet := NewBroadcastPacket(tx, bundle)

	rebuilt, err := NewBundleBuilder(p.replica(t)).Build(tx, execctx.ExternalKeys(packet.PublicKeys, packet.Signatures))
	require.NoError(t, err)
	for i := range bundle.Contexts {
		require.True(t, bundle.Contexts[i].Equal(rebuilt.Contexts[i]), "context %d", i)
	}
	assert.Equal(t, bundle.TapRoot(), rebuilt.TapRoot())

	internal, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	assert.True(t, bundle.OutputKey(internal.PubKey()).IsEqual(rebuilt.OutputKey(internal.PubKey())))

	// a different seed commits to different scripts
	other, err := NewBundleBuilder(tree).Build(tx, execctx.RandomKeys(NewSeededReader([]byte("other"))))
	require.NoError(t, err)
	assert.NotEqual(t, bundle.TapRoot(), other.TapRoot())
}

func TestBundleBuildErrors(t *testing.T) {
	p := newParty(2)
	tree := p.replica(t)
	tx := signedTx(t, p, tree)

	_, err := NewBundleBuilder(tree).Build(tx, execctx.ExternalKeys(nil, nil))
	assert.ErrorIs(t, err, execctx.ErrKeysExhausted)

	var stranger fr.Element
	stranger.SetUint64(5)
	tx.ToPublicKey = types.PublicKeyOf(&stranger)
	_, err = NewBundleBuilder(tree).Build(tx, execctx.RandomKeys(NewSeededReader(nil)))
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestBroadcastPacketEncoding(t *testing.T) {
	p := newParty(2)
	tree := p.replica(t)
	tx := signedTx(t, p, tree)
	bundle, err := NewBundleBuilder(tree).Build(tx, execctx.RandomKeys(NewSeededReader([]byte("packet"))))
	require.NoError(t, err)
	packet := NewBroadcastPacket(tx, bundle)

	raw, err := packet.Encode()
	require.NoError(t, err)
	assert.Len(t, raw, transaction.Size+countSize+BundleSize*leafSize)

	decoded, err := DecodeBroadcastPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, tx.Serialize(), decoded.Tx.Serialize())
	assert.Equal(t, packet.PublicKeys, decoded.PublicKeys)
	assert.Equal(t, packet.Signatures, decoded.Signatures)

	_, err = DecodeBroadcastPacket(raw[:len(raw)-1])
	assert.ErrorIs(t, err, ErrMalformedPacket)
	_, err = DecodeBroadcastPacket(raw[:10])
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = (&BroadcastPacket{Tx: tx, PublicKeys: packet.PublicKeys}).Encode()
	assert.ErrorIs(t, err, ErrMalformedPacket)

	summary, err := jsonx.Marshal(packet)
	require.NoError(t, err)
	assert.Contains(t, string(summary), `"leaves":1022`)
}

func TestSeededReader(t *testing.T) {
	a := make([]byte, 100)
	b := make([]byte, 100)
	_, err := io.ReadFull(NewSeededReader([]byte("seed")), a)
	require.NoError(t, err)
	_, err = io.ReadFull(NewSeededReader([]byte("seed")), b)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, make([]byte, 100), a)

	_, err = io.ReadFull(NewSeededReader([]byte("other seed")), b)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// reads continue the stream rather than restarting it
	r := NewSeededReader([]byte("seed"))
	first := make([]byte, 50)
	second := make([]byte, 50)
	_, _ = r.Read(first)
	_, _ = r.Read(second)
	assert.Equal(t, a[:50], first)
	assert.Equal(t, a[50:], second)

}
