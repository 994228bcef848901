// Package chain implements the branch graph: an in-memory directed forest
// of tipset branches, their fork/merge/split mutations, and the head and
// routing queries built on top of it.
package chain

import "github.com/colorfulnotion/chainidx/common"

// Height is a tipset height. Genesis is height 0.
type Height uint64

// TipsetHash identifies a tipset. The zero value means "none".
type TipsetHash = common.Hash

// BranchId is a small opaque identifier for a branch. Ids are allocated
// monotonically as max(existing)+1, starting from GenesisBranch+1.
type BranchId uint64

const (
	// NoBranch is the sentinel "absent branch" id.
	NoBranch BranchId = 0
	// GenesisBranch is the fixed id of the branch rooted at height 0.
	GenesisBranch BranchId = 1
)

// Branch is a contiguous run of tipsets, ordered by height, with no fork
// between them.
type Branch struct {
	Id BranchId

	Top       TipsetHash
	TopHeight Height

	Bottom       TipsetHash
	BottomHeight Height

	Parent     BranchId
	ParentHash TipsetHash

	SyncedToGenesis bool

	Forks map[BranchId]struct{}
}

func newBranchFrom(b *Branch) *Branch {
	forks := make(map[BranchId]struct{}, len(b.Forks))
	for id := range b.Forks {
		forks[id] = struct{}{}
	}
	return &Branch{
		Id:              b.Id,
		Top:             b.Top,
		TopHeight:       b.TopHeight,
		Bottom:          b.Bottom,
		BottomHeight:    b.BottomHeight,
		Parent:          b.Parent,
		ParentHash:      b.ParentHash,
		SyncedToGenesis: b.SyncedToGenesis,
		Forks:           forks,
	}
}

// IsHead reports whether the branch has no children.
func (b *Branch) IsHead() bool {
	return len(b.Forks) == 0
}

// RenameBranch describes a split (or a merge-by-rename) decided by
// FindStorePosition and carried out by SplitBranch/StoreTipset.
type RenameBranch struct {
	OldId       BranchId
	NewId       BranchId
	AboveHeight Height
	Split       bool
}

// StorePosition is the pure-query result of FindStorePosition: where a new
// tipset would land, without mutating the graph.
type StorePosition struct {
	AssignedBranch  BranchId
	AtBottomBranch  BranchId
	OnTopBranch     BranchId
	Rename          *RenameBranch
}

// HeadChanges reports which tipset hashes stopped being heads and which
// ones started being heads, as a result of one StoreTipset or Init call.
// Within a batch, Removed is always populated before Added.
type HeadChanges struct {
	Removed []TipsetHash
	Added   []TipsetHash
}

func (c *HeadChanges) remove(h TipsetHash) { c.Removed = append(c.Removed, h) }
func (c *HeadChanges) add(h TipsetHash)    { c.Added = append(c.Added, h) }

// PersistedBranch is the row shape an external index table hands to Init.
// The Forks set is never persisted; Init reconstructs it from parent edges.
type PersistedBranch struct {
	Id              BranchId
	Top             TipsetHash
	TopHeight       Height
	Bottom          TipsetHash
	BottomHeight    Height
	Parent          BranchId
	ParentHash      TipsetHash
	SyncedToGenesis bool
}
