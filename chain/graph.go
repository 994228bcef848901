package chain

import (
	"fmt"

	"github.com/colorfulnotion/chainidx/chainerrors"
)

// Graph is a directed forest of branches. It is single-owner and not
// internally synchronized: callers serialize access (an actor, a message
// loop, or an external lock).
type Graph struct {
	allBranches  map[BranchId]*Branch
	heads        map[TipsetHash]*Branch
	unloadedRoots map[TipsetHash]*Branch
	genesis      *Branch

	currentChain      map[Height]*Branch
	currentTopBranch  BranchId
	currentHeight     Height
}

// NewGraph returns an empty branch graph.
func NewGraph() *Graph {
	g := &Graph{}
	g.clearLocked()
	return g
}

// Empty reports whether the graph holds no branches at all.
func (g *Graph) Empty() bool {
	return len(g.allBranches) == 0
}

// Heads returns a read-only snapshot of the current heads, keyed by their
// top tipset hash.
func (g *Graph) Heads() map[TipsetHash]*Branch {
	out := make(map[TipsetHash]*Branch, len(g.heads))
	for h, b := range g.heads {
		out[h] = newBranchFrom(b)
	}
	return out
}

// GetBranch returns a copy of the branch with the given id.
func (g *Graph) GetBranch(id BranchId) (*Branch, error) {
	b, ok := g.allBranches[id]
	if !ok {
		return nil, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, id)
	}
	return newBranchFrom(b), nil
}

// GetRootBranch walks parent pointers from id up to the parentless branch
// at the top of that lineage.
func (g *Graph) GetRootBranch(id BranchId) (*Branch, error) {
	for {
		b, ok := g.allBranches[id]
		if !ok {
			return nil, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, id)
		}
		if b.Parent == NoBranch {
			return newBranchFrom(b), nil
		}
		id = b.Parent
	}
}

func (g *Graph) getBranch(id BranchId) (*Branch, bool) {
	b, ok := g.allBranches[id]
	return b, ok
}

// Export dumps every branch as a PersistedBranch row, suitable for feeding
// back into Init. It is the inverse of Init's input shape, not of Init
// itself: unloaded roots round-trip, but Forks is always recomputed on load.
func (g *Graph) Export() map[BranchId]PersistedBranch {
	rows := make(map[BranchId]PersistedBranch, len(g.allBranches))
	for id, b := range g.allBranches {
		rows[id] = PersistedBranch{
			Id:              b.Id,
			Top:             b.Top,
			TopHeight:       b.TopHeight,
			Bottom:          b.Bottom,
			BottomHeight:    b.BottomHeight,
			Parent:          b.Parent,
			ParentHash:      b.ParentHash,
			SyncedToGenesis: b.SyncedToGenesis,
		}
	}
	return rows
}

// BranchAtHeight resolves the branch covering height h on the currently
// selected chain.
func (g *Graph) BranchAtHeight(h Height, mustExist bool) (BranchId, error) {
	if len(g.currentChain) == 0 {
		return NoBranch, chainerrors.ErrNoCurrentChain
	}

	if h > g.currentHeight {
		if mustExist {
			return NoBranch, chainerrors.ErrBranchNotFound
		}
		return NoBranch, nil
	}

	if g.genesis != nil && h <= g.genesis.TopHeight {
		return GenesisBranch, nil
	}

	// lower_bound(h): the entry with the smallest top_height >= h.
	var best *Branch
	for height, b := range g.currentChain {
		if height < h {
			continue
		}
		if best == nil || height < best.TopHeight {
			best = b
		}
	}
	if best == nil {
		if mustExist {
			return NoBranch, chainerrors.ErrBranchNotFound
		}
		return NoBranch, nil
	}
	return best.Id, nil
}

// CommonRoot walks both lineages upward, always advancing the side with the
// greater bottom height, until the ids coincide.
func (g *Graph) CommonRoot(a, b BranchId) (*Branch, error) {
	if a == NoBranch || b == NoBranch {
		return nil, chainerrors.ErrNoCommonRoot
	}

	A, ok := g.getBranch(a)
	if !ok {
		return nil, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, a)
	}
	B, ok := g.getBranch(b)
	if !ok {
		return nil, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, b)
	}

	for a != b {
		switch {
		case A.BottomHeight <= B.BottomHeight:
			b = B.Parent
			if b == NoBranch {
				return nil, chainerrors.ErrNoCommonRoot
			}
			B, ok = g.getBranch(b)
			if !ok {
				return nil, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, b)
			}
		case B.BottomHeight <= A.BottomHeight:
			a = A.Parent
			if a == NoBranch {
				return nil, chainerrors.ErrNoCommonRoot
			}
			A, ok = g.getBranch(a)
			if !ok {
				return nil, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, a)
			}
		}
	}

	return newBranchFrom(A), nil
}

// Route walks `to` upward through parent pointers until it reaches `from`,
// returning the path from `from` to `to` inclusive.
func (g *Graph) Route(from, to BranchId) ([]BranchId, error) {
	if from == NoBranch || to == NoBranch {
		return nil, chainerrors.ErrNoRoute
	}

	if from == to {
		return []BranchId{from}, nil
	}

	var route []BranchId
	routeFound := false
	cur := to
	for {
		route = append(route, cur)
		info, ok := g.getBranch(cur)
		if !ok {
			return nil, fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, cur)
		}
		cur = info.Parent
		if cur == from {
			routeFound = true
			break
		}
		if cur == NoBranch || cur == GenesisBranch {
			break
		}
	}

	if !routeFound {
		return nil, chainerrors.ErrNoRoute
	}

	route = append(route, from)
	for i, j := 0, len(route)-1; i < j; i, j = i+1, j-1 {
		route[i], route[j] = route[j], route[i]
	}
	return route, nil
}

// SetCurrentHead selects the active chain. Passing NoBranch clears it.
func (g *Graph) SetCurrentHead(headBranch BranchId, height Height) error {
	if headBranch == NoBranch {
		g.currentChain = make(map[Height]*Branch)
		g.currentTopBranch = NoBranch
		g.currentHeight = 0
		return nil
	}

	if g.currentTopBranch == headBranch {
		if g.currentHeight != height {
			info, ok := g.getBranch(headBranch)
			if !ok {
				return fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, headBranch)
			}
			if info.TopHeight < height || info.BottomHeight > height {
				return chainerrors.ErrHeightMismatch
			}
			g.currentHeight = height
		}
		return nil
	}

	info, ok := g.getBranch(headBranch)
	if !ok {
		return chainerrors.ErrHeadNotFound
	}
	if !info.SyncedToGenesis {
		return chainerrors.ErrHeadNotSynced
	}
	if info.TopHeight < height || info.BottomHeight > height {
		return chainerrors.ErrHeightMismatch
	}

	g.currentHeight = height
	g.currentChain = make(map[Height]*Branch)
	g.currentTopBranch = headBranch

	cycleGuard := len(g.allBranches) + 1
	g.currentChain[info.TopHeight] = info

	parent := info.Parent
	for parent != NoBranch {
		cycleGuard--
		if cycleGuard == 0 {
			g.currentChain = make(map[Height]*Branch)
			g.currentTopBranch = NoBranch
			g.currentHeight = 0
			return chainerrors.ErrCycleDetected
		}

		branch, ok := g.getBranch(parent)
		if !ok {
			return fmt.Errorf("%w: branch %d", chainerrors.ErrBranchNotFound, parent)
		}
		parent = branch.Parent
		g.currentChain[branch.TopHeight] = branch
	}

	return nil
}
