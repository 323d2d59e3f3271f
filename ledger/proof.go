package ledger

import (
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/types"
)

// Proof is a snapshot of one slot and the path to the root at the time it was
// generated. RootAndSiblings[0] is the root and RootAndSiblings[d] the
// sibling at depth d counted from the leaf.
type Proof struct {
	Entry           types.Entry
	EntryIndex      int
	RootAndSiblings [][hashx.Size]byte
}

func (p *Proof) Levels() int {
	return len(p.RootAndSiblings) - 1
}

func (p *Proof) Root() [hashx.Size]byte {
	return p.RootAndSiblings[0]
}

// ComputeRoot walks from the entry hash up through the siblings.
func (p *Proof) ComputeRoot() [hashx.Size]byte {
	current := p.Entry.Hash()
	idx := p.EntryIndex
	for depth := 1; depth <= p.Levels(); depth++ {
		sibling := p.RootAndSiblings[depth]
		if idx&1 == 1 {
			current = hashx.Pair(sibling, current)
		} else {
			current = hashx.Pair(current, sibling)
		}
		idx >>= 1
	}
	return current
}

func (p *Proof) Validate() bool {
	levels := p.Levels()
	if levels < MinLevels || levels > MaxLevels {
		return false
	}
	if p.EntryIndex < 0 || p.EntryIndex >= 1<<levels {
		return false
	}
	return p.ComputeRoot() == p.Root()
}
