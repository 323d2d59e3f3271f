package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/mezonai/bitvm20/execctx"
	"github.com/mezonai/bitvm20/ledger"
	"github.com/mezonai/bitvm20/monitoring"
	"github.com/mezonai/bitvm20/script"
	"github.com/mezonai/bitvm20/transaction"
)

const (
	// position of each group of contexts in a bundle
	RootLeaf      = 0
	FromProofLeaf = 1
	ToProofLeaf   = 2
	BalanceLeaf   = 3
	SignatureLeaf = 4

	// BundleSize is the number of contexts committed for one transaction.
	BundleSize = SignatureLeaf + transaction.SignatureStepCount
)

var ErrEndpointNotFound = errors.New("protocol: transaction endpoint not in ledger")

// Bundle is the ordered list of contexts a challenger needs for one
// transaction: root, sender proof, recipient proof, balance check and the
// signature steps.
type Bundle struct {
	Contexts []*execctx.Context
}

// Leaf is one script to be committed on chain with the number of one-time
// signatures it consumes.
type Leaf struct {
	Script             script.Script
	RequiredSignatures int
}

func (b *Bundle) Len() int {
	return len(b.Contexts)
}

func (b *Bundle) Leaves() []Leaf {
	leaves := make([]Leaf, len(b.Contexts))
	for i, ctx := range b.Contexts {
		leaves[i] = Leaf{Script: ctx.Script(), RequiredSignatures: 1}
	}
	return leaves
}

func (b *Bundle) TapLeaves() []txscript.TapLeaf {
	leaves := b.Leaves()
	out := make([]txscript.TapLeaf, len(leaves))
	for i, l := range leaves {
		out[i] = txscript.NewBaseTapLeaf(l.Script.Compile())
	}
	return out
}

// TapRoot is the merkle root of the tapscript tree over all leaves.
func (b *Bundle) TapRoot() chainhash.Hash {
	tree := txscript.AssembleTaprootScriptTree(b.TapLeaves()...)
	return tree.RootNode.TapHash()
}

// OutputKey tweaks internalKey with the bundle's tapscript root.
func (b *Bundle) OutputKey(internalKey *btcec.PublicKey) *btcec.PublicKey {
	root := b.TapRoot()
	return txscript.ComputeTaprootOutputKey(internalKey, root[:])
}

// ValidateInputsAndSignatures checks every context's one-time signature
// against its input and returns the index of the first failure.
func (b *Bundle) ValidateInputsAndSignatures() (int, bool) {
	for i, ctx := range b.Contexts {
		if !ctx.ValidateInputAndSignature() {
			return i, false
		}
	}
	return -1, true
}

// BundleBuilder lowers a transaction against a ledger into its bundle.
type BundleBuilder struct {
	tree *ledger.Tree
}

func NewBundleBuilder(tree *ledger.Tree) *BundleBuilder {
	return &BundleBuilder{tree: tree}
}

// Build draws BundleSize keys from keys in leaf order. Both endpoints must
// be assigned in the ledger.
func (bb *BundleBuilder) Build(tx *transaction.Transaction, keys execctx.KeySource) (*Bundle, error) {
	start := time.Now()

	fromIdx, ok := bb.tree.IndexOf(&tx.FromPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: sender", ErrEndpointNotFound)
	}
	toIdx, ok := bb.tree.IndexOf(&tx.ToPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: recipient", ErrEndpointNotFound)
	}
	fromProof, _ := bb.tree.GenerateProof(fromIdx)
	toProof, _ := bb.tree.GenerateProof(toIdx)

	bundle := &Bundle{Contexts: make([]*execctx.Context, 0, BundleSize)}
	steps := []func() ([]*execctx.Context, error){
		func() ([]*execctx.Context, error) { return bb.tree.ContextsForRootValidation(keys) },
		func() ([]*execctx.Context, error) { return fromProof.ContextsForProofValidation(keys) },
		func() ([]*execctx.Context, error) { return toProof.ContextsForProofValidation(keys) },
		func() ([]*execctx.Context, error) { return bb.tree.ContextsForPrimaryValidation(tx, keys) },
		func() ([]*execctx.Context, error) { return tx.ContextsForSignatureVerification(keys) },
	}
	for _, step := range steps {
		contexts, err := step()
		if err != nil {
			return nil, fmt.Errorf("build bundle: %w", err)
		}
		bundle.Contexts = append(bundle.Contexts, contexts...)
	}
	if len(bundle.Contexts) != BundleSize {
		return nil, fmt.Errorf("build bundle: %d contexts, want %d", len(bundle.Contexts), BundleSize)
	}

	monitoring.AddContextsGenerated(len(bundle.Contexts))
	monitoring.RecordBundleBuildTime(time.Since(start))
	return bundle, nil
}
