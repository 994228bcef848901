package chain

import (
	"fmt"

	"github.com/colorfulnotion/chainidx/chainerrors"
	"github.com/colorfulnotion/chainidx/common"
)

// TipsetInfo is the minimal shape StoreTipset/FindStorePosition need from a
// candidate tipset: its hash and height. Callers own the richer tipset type;
// the graph only ever touches these two fields.
type TipsetInfo struct {
	Hash   TipsetHash
	Height Height
}

// FindStorePosition is a pure query: it computes where a tipset would be
// inserted without mutating the graph.
func (g *Graph) FindStorePosition(tipset TipsetInfo, parentHash TipsetHash, parentBranch BranchId, parentHeight Height) (StorePosition, error) {
	var p StorePosition

	if tipset.Height == 0 {
		if !g.Empty() {
			return p, chainerrors.ErrStoreError
		}
		p.AssignedBranch = GenesisBranch
		return p, nil
	}

	if root, ok := g.unloadedRoots[tipset.Hash]; ok {
		p.AtBottomBranch = root.Id
		p.AssignedBranch = p.AtBottomBranch
	}

	if parentBranch != NoBranch {
		info, ok := g.getBranch(parentBranch)
		if !ok {
			return p, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, parentBranch)
		}
		if parentHeight > info.TopHeight || parentHeight < info.BottomHeight {
			return p, chainerrors.ErrHeightMismatch
		}

		p.OnTopBranch = parentBranch

		if parentHeight != info.TopHeight {
			newId := g.newBranchId()
			p.Rename = &RenameBranch{
				OldId:       parentBranch,
				NewId:       newId,
				AboveHeight: parentHeight,
				Split:       true,
			}
			// The split itself only allocates newId for the old branch's
			// former tail; the tipset being stored still needs a distinct
			// id of its own, since nothing is inserted into allBranches
			// between this call and the one below.
			if p.AssignedBranch == NoBranch {
				p.AssignedBranch = newId + 1
			}
		} else if len(info.Forks) == 0 {
			p.AssignedBranch = parentBranch
			if p.AtBottomBranch != NoBranch {
				p.Rename = &RenameBranch{
					OldId:       p.AtBottomBranch,
					NewId:       parentBranch,
					AboveHeight: 0,
					Split:       false,
				}
			}
		}
	}

	if p.AssignedBranch == NoBranch {
		p.AssignedBranch = g.newBranchId()
	}

	return p, nil
}

// SplitBranch executes the split decided by FindStorePosition: the old
// branch is shortened to end at pos.AboveHeight, and a fresh branch carries
// its former tail, inheriting its forks.
func (g *Graph) SplitBranch(newTop, newBottom TipsetHash, newBottomHeight Height, pos RenameBranch) {
	parent, ok := g.getBranch(pos.OldId)
	if !ok {
		panic(fmt.Sprintf("chain: SplitBranch: old branch %d not found", pos.OldId))
	}

	fork := newBranchFrom(parent)

	isHead := false
	if _, ok := g.heads[parent.Top]; ok {
		isHead = true
		delete(g.heads, parent.Top)
	}

	inCurrentChain := false
	if len(g.currentChain) > 0 && parent.SyncedToGenesis {
		if b, ok := g.currentChain[parent.TopHeight]; ok && b == parent {
			delete(g.currentChain, parent.TopHeight)
			inCurrentChain = true
		}
	}

	fork.Id = pos.NewId
	fork.Bottom = newBottom
	fork.BottomHeight = newBottomHeight
	fork.Parent = parent.Id
	fork.ParentHash = newTop
	for id := range fork.Forks {
		child, ok := g.getBranch(id)
		if !ok {
			panic(fmt.Sprintf("chain: SplitBranch: fork %d not found", id))
		}
		child.Parent = fork.Id
	}

	g.allBranches[fork.Id] = fork

	parent.Top = newTop
	parent.TopHeight = pos.AboveHeight
	parent.Forks = map[BranchId]struct{}{fork.Id: {}}

	if isHead {
		g.heads[fork.Top] = fork
	}
	if inCurrentChain {
		g.currentChain[parent.TopHeight] = parent
		g.currentChain[fork.TopHeight] = fork
	}
}

// StoreGenesis only succeeds if the graph is empty; it stores the given
// tipset as GenesisBranch.
func (g *Graph) StoreGenesis(tipset TipsetInfo) error {
	if !g.Empty() {
		return chainerrors.ErrStoreError
	}
	pos := StorePosition{AssignedBranch: GenesisBranch}
	g.StoreTipset(tipset, TipsetHash{}, pos)
	return nil
}

// StoreTipset commits a new tipset at the position FindStorePosition
// computed for it, covering the five exhaustive cases from the design: a
// standalone branch, a link-to-bottom, a head extension, a merge via
// rename, and a fork off a non-head branch.
func (g *Graph) StoreTipset(tipset TipsetInfo, parentHash TipsetHash, pos StorePosition) HeadChanges {
	var changes HeadChanges

	hash := tipset.Hash
	height := tipset.Height

	newStandalone := pos.AtBottomBranch == NoBranch && pos.OnTopBranch == NoBranch
	if newStandalone {
		g.newBranch(hash, height, parentHash, pos)
		return changes
	}

	var linkedToBottom *Branch

	if pos.AtBottomBranch != NoBranch {
		b, ok := g.unloadedRoots[hash]
		if !ok {
			panic(fmt.Sprintf("chain: StoreTipset: unloaded root %s not found", hash))
		}

		b.BottomHeight = height
		b.Bottom = hash
		b.ParentHash = parentHash

		linkedToBottom = b
		delete(g.unloadedRoots, hash)

		if pos.OnTopBranch == NoBranch {
			g.unloadedRoots[parentHash] = linkedToBottom
			return changes
		}
	}

	if pos.AssignedBranch == pos.OnTopBranch {
		parentBranch, ok := g.heads[parentHash]
		if !ok {
			panic(fmt.Sprintf("chain: StoreTipset: head %s not found", parentHash))
		}
		delete(g.heads, parentHash)

		if linkedToBottom == nil {
			parentBranch.TopHeight = height
			parentBranch.Top = hash

			notify := parentBranch.SyncedToGenesis
			g.heads[hash] = parentBranch

			if notify {
				changes.remove(parentHash)
				changes.add(hash)
			}
		} else {
			if parentBranch.SyncedToGenesis {
				changes.remove(parentHash)
			}
			g.mergeBranches(linkedToBottom, parentBranch, &changes)
		}

		return changes
	}

	branch, ok := g.getBranch(pos.OnTopBranch)
	if !ok {
		panic(fmt.Sprintf("chain: StoreTipset: branch %d not found", pos.OnTopBranch))
	}

	if linkedToBottom == nil {
		g.newBranch(hash, height, parentHash, pos)
		linkedToBottom, ok = g.getBranch(pos.AssignedBranch)
		if !ok {
			panic("chain: StoreTipset: freshly created branch vanished")
		}
	}

	branch.Forks[pos.AssignedBranch] = struct{}{}
	linkedToBottom.Parent = branch.Id
	g.updateHeads(linkedToBottom, branch.SyncedToGenesis, &changes)

	return changes
}

func (g *Graph) newBranch(hash TipsetHash, height Height, parentHash TipsetHash, pos StorePosition) {
	b := &Branch{
		Id:         pos.AssignedBranch,
		Top:        hash,
		TopHeight:  height,
		Bottom:     hash,
		BottomHeight: height,
		ParentHash: parentHash,
		Forks:      make(map[BranchId]struct{}),
	}

	g.allBranches[b.Id] = b
	g.heads[hash] = b

	if common.IsNilHash(parentHash) {
		b.SyncedToGenesis = true
		g.genesis = b
		return
	}

	if pos.OnTopBranch == NoBranch {
		g.unloadedRoots[parentHash] = b
	}
}

func (g *Graph) mergeBranches(branch, parentBranch *Branch, changes *HeadChanges) {
	parentBranch.TopHeight = branch.TopHeight
	parentBranch.Top = branch.Top
	parentBranch.Forks = branch.Forks
	for id := range branch.Forks {
		child, ok := g.getBranch(id)
		if !ok {
			panic(fmt.Sprintf("chain: mergeBranches: fork %d not found", id))
		}
		child.Parent = parentBranch.Id
	}
	delete(g.allBranches, branch.Id)
	g.updateHeads(parentBranch, parentBranch.SyncedToGenesis, changes)
}

func (g *Graph) updateHeads(branch *Branch, synced bool, changes *HeadChanges) {
	branch.SyncedToGenesis = synced
	if len(branch.Forks) == 0 {
		g.heads[branch.Top] = branch
		if synced {
			changes.add(branch.Top)
		}
		return
	}
	for id := range branch.Forks {
		fork, ok := g.getBranch(id)
		if !ok {
			panic(fmt.Sprintf("chain: updateHeads: fork %d not found", id))
		}
		g.updateHeads(fork, synced, changes)
	}
}

func (g *Graph) newBranchId() BranchId {
	var max BranchId
	for id := range g.allBranches {
		if id > max {
			max = id
		}
	}
	if len(g.allBranches) == 0 {
		return GenesisBranch + 1
	}
	return max + 1
}

// Clear discards all branches, heads, and the current chain.
func (g *Graph) Clear() {
	g.clearLocked()
}

func (g *Graph) clearLocked() {
	g.allBranches = make(map[BranchId]*Branch)
	g.heads = make(map[TipsetHash]*Branch)
	g.unloadedRoots = make(map[TipsetHash]*Branch)
	g.genesis = nil
	g.currentChain = make(map[Height]*Branch)
	g.currentTopBranch = NoBranch
	g.currentHeight = 0
}

// Init rebuilds the graph from a persisted branch table. Rows carry no fork
// sets; each branch's Forks is reconstructed from the parent edges.
func (g *Graph) Init(rows map[BranchId]PersistedBranch) (HeadChanges, error) {
	g.Clear()

	var changes HeadChanges

	if len(rows) == 0 {
		return changes, nil
	}

	branches := make(map[BranchId]*Branch, len(rows))
	for id, row := range rows {
		branches[id] = &Branch{
			Id:              row.Id,
			Top:             row.Top,
			TopHeight:       row.TopHeight,
			Bottom:          row.Bottom,
			BottomHeight:    row.BottomHeight,
			Parent:          row.Parent,
			ParentHash:      row.ParentHash,
			SyncedToGenesis: row.SyncedToGenesis,
			Forks:           make(map[BranchId]struct{}),
		}
	}
	g.allBranches = branches

	for id, b := range g.allBranches {
		if id != b.Id || id == NoBranch {
			g.Clear()
			return HeadChanges{}, fmt.Errorf("%w: inconsistent branch id %d", chainerrors.ErrLoadError, id)
		}
		if b.TopHeight < b.BottomHeight {
			g.Clear()
			return HeadChanges{}, fmt.Errorf("%w: heights inconsistent (%d, %d) for id %d", chainerrors.ErrLoadError, b.TopHeight, b.BottomHeight, b.Id)
		}

		if b.Parent != NoBranch {
			if b.Parent == b.Id {
				g.Clear()
				return HeadChanges{}, fmt.Errorf("%w: parent and branch id are the same (%d)", chainerrors.ErrLoadError, b.Id)
			}
			parent, ok := g.allBranches[b.Parent]
			if !ok {
				g.Clear()
				return HeadChanges{}, fmt.Errorf("%w: parent %d not found for branch %d", chainerrors.ErrLoadError, b.Parent, b.Id)
			}
			if parent.TopHeight >= b.BottomHeight {
				g.Clear()
				return HeadChanges{}, fmt.Errorf("%w: parent height inconsistent (%d, %d) for id %d and parent %d", chainerrors.ErrLoadError, b.BottomHeight, parent.TopHeight, b.Id, b.Parent)
			}
			parent.Forks[b.Id] = struct{}{}
		} else if b.Id == GenesisBranch {
			g.genesis = b
		} else {
			if common.IsNilHash(b.ParentHash) {
				g.Clear()
				return HeadChanges{}, fmt.Errorf("%w: expected parent hash for branch id=%d", chainerrors.ErrParentExpected, b.Id)
			}
			g.unloadedRoots[b.ParentHash] = b
		}
	}

	if g.genesis == nil {
		g.Clear()
		return HeadChanges{}, chainerrors.ErrNoGenesisBranch
	}

	for _, b := range g.allBranches {
		if len(b.Forks) == 1 {
			g.Clear()
			return HeadChanges{}, fmt.Errorf("%w: inconsistent # of forks (1) for branch %d, must be merged", chainerrors.ErrLoadError, b.Id)
		}
	}

	g.updateHeads(g.genesis, true, &changes)

	for _, b := range g.allBranches {
		if len(b.Forks) == 0 && !b.SyncedToGenesis {
			g.heads[b.Top] = b
		}
	}

	return changes, nil
}
