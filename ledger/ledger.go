package ledger

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/holiman/uint256"
	"github.com/mezonai/bitvm20/codec"
	bverrors "github.com/mezonai/bitvm20/errors"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
)

const (
	MinLevels     = 1
	MaxLevels     = 20
	DefaultLevels = 12
)

var (
	ErrInvalidLevels      = errors.New("ledger: levels out of range")
	ErrCapacityExceeded   = errors.New("ledger: capacity exceeded")
	ErrDuplicatePublicKey = errors.New("ledger: public key already assigned")
)

type pubKeyIndex = [codec.PointSize]byte

func keyOf(pk *bn254.G1Affine) pubKeyIndex {
	return codec.SerializeG1(pk)
}

// Tree is a fixed-depth Merkle tree over 2^levels account slots. Slots are
// assigned in order; unused slots hold the default entry. A Tree has a single
// owner and no locking.
type Tree struct {
	levels   int
	entries  []*types.Entry
	assigned int
	index    map[pubKeyIndex]int
}

func New(levels int) (*Tree, error) {
	if levels < MinLevels || levels > MaxLevels {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLevels, levels, MinLevels, MaxLevels)
	}
	capacity := 1 << levels
	entries := make([]*types.Entry, capacity)
	for i := range entries {
		entries[i] = types.DefaultEntry()
	}
	return &Tree{
		levels:  levels,
		entries: entries,
		index:   make(map[pubKeyIndex]int),
	}, nil
}

func (t *Tree) Levels() int {
	return t.levels
}

func (t *Tree) Capacity() int {
	return len(t.entries)
}

// Size is the number of assigned slots.
func (t *Tree) Size() int {
	return t.assigned
}

// Assign stores a copy of entry in the next free slot and returns its index.
func (t *Tree) Assign(entry *types.Entry) (int, error) {
	if t.assigned >= len(t.entries) {
		return -1, fmt.Errorf("%w: %w", ErrCapacityExceeded,
			bverrors.NewError(bverrors.ErrCodeCapacityExceeded, fmt.Sprintf("%s (%d slots)", bverrors.ErrMsgCapacityExceeded, len(t.entries))))
	}
	key := keyOf(&entry.PublicKey)
	if existing, ok := t.index[key]; ok {
		return -1, fmt.Errorf("%w: slot %d", ErrDuplicatePublicKey, existing)
	}
	idx := t.assigned
	t.entries[idx] = entry.Clone()
	t.index[key] = idx
	t.assigned++
	logx.Debug("LEDGER", fmt.Sprintf("assigned slot %d to %s", idx, entry.Address()))
	return idx, nil
}

// Get returns a copy of the entry in an assigned slot.
func (t *Tree) Get(i int) (*types.Entry, bool) {
	if i < 0 || i >= t.assigned {
		return nil, false
	}
	return t.entries[i].Clone(), true
}

// GetByPublicKey returns a copy of the entry owning pk.
func (t *Tree) GetByPublicKey(pk *bn254.G1Affine) (*types.Entry, bool) {
	e, ok := t.lookup(pk)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (t *Tree) IndexOf(pk *bn254.G1Affine) (int, bool) {
	idx, ok := t.index[keyOf(pk)]
	return idx, ok
}

func (t *Tree) lookup(pk *bn254.G1Affine) (*types.Entry, bool) {
	idx, ok := t.IndexOf(pk)
	if !ok {
		return nil, false
	}
	return t.entries[idx], true
}

func (t *Tree) leafHashes() [][hashx.Size]byte {
	hashes := make([][hashx.Size]byte, len(t.entries))
	for i, e := range t.entries {
		hashes[i] = e.Hash()
	}
	return hashes
}

// collapse pairs adjacent nodes left to right.
func collapse(level [][hashx.Size]byte) [][hashx.Size]byte {
	next := make([][hashx.Size]byte, len(level)/2)
	for i := range next {
		next[i] = hashx.Pair(level[2*i], level[2*i+1])
	}
	return next
}

// Root hashes every slot, used or not.
func (t *Tree) Root() [hashx.Size]byte {
	level := t.leafHashes()
	for len(level) > 1 {
		level = collapse(level)
	}
	return level[0]
}

// GenerateProof returns the inclusion proof of slot i, which may be unused.
func (t *Tree) GenerateProof(i int) (*Proof, bool) {
	if i < 0 || i >= len(t.entries) {
		return nil, false
	}
	proof := &Proof{
		Entry:           *t.entries[i].Clone(),
		EntryIndex:      i,
		RootAndSiblings: make([][hashx.Size]byte, t.levels+1),
	}
	level := t.leafHashes()
	idx := i
	for depth := 1; depth <= t.levels; depth++ {
		proof.RootAndSiblings[depth] = level[idx^1]
		level = collapse(level)
		idx >>= 1
	}
	proof.RootAndSiblings[0] = level[0]
	return proof, true
}

// GenerateTransaction builds an unsigned transfer between assigned slots.
func (t *Tree) GenerateTransaction(fromIdx, toIdx int, value *uint256.Int) (*transaction.Transaction, bool) {
	if fromIdx < 0 || fromIdx >= t.assigned || toIdx < 0 || toIdx >= t.assigned {
		return nil, false
	}
	return transaction.NewUnsigned(t.entries[fromIdx], t.entries[toIdx], value), true
}

// GenerateTransactionFromUserTransaction resolves slot indices and carries
// the user's signature over.
func (t *Tree) GenerateTransactionFromUserTransaction(utx *types.UserTransaction) (*transaction.Transaction, bool) {
	tx, ok := t.GenerateTransaction(utx.FromUserID, utx.ToUserID, &utx.Value)
	if !ok {
		return nil, false
	}
	tx.R = utx.R
	tx.S = utx.S
	return tx, true
}
