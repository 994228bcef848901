package chain

import (
	"testing"

	"github.com/colorfulnotion/chainidx/chainerrors"
	"github.com/colorfulnotion/chainidx/common"
	"github.com/stretchr/testify/require"
)

func hashOf(label string) TipsetHash {
	return common.Blake2Hash([]byte(label))
}

func tipsetLabel(h Height) string {
	return "T" + string(rune('0'+int(h)))
}

// commitTipset only ever extends or forks a head in this test file's
// scenarios; none of them land mid-branch, so it has no old-tail
// hash/height of its own to offer a split. A caller that hits a split (use
// FindStorePosition/SplitBranch directly, as TestGraph_S4Split does) must
// supply that value itself, since the graph tracks only a branch's top and
// bottom, never its interior tipsets.
func commitTipset(t *testing.T, g *Graph, hash TipsetHash, height Height, parentHash TipsetHash, parentBranch BranchId, parentHeight Height) HeadChanges {
	t.Helper()
	pos, err := g.FindStorePosition(TipsetInfo{Hash: hash, Height: height}, parentHash, parentBranch, parentHeight)
	require.NoError(t, err)
	require.False(t, pos.Rename != nil && pos.Rename.Split, "commitTipset: scenario unexpectedly split a branch; use FindStorePosition/SplitBranch directly and supply the old tail")
	return g.StoreTipset(TipsetInfo{Hash: hash, Height: height}, parentHash, pos)
}

func TestGraph_S1GenesisOnly(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))

	heads := g.Heads()
	require.Len(t, heads, 1)
	_, ok := heads[gen]
	require.True(t, ok)

	require.NoError(t, g.SetCurrentHead(GenesisBranch, 0))
	id, err := g.BranchAtHeight(0, true)
	require.NoError(t, err)
	require.Equal(t, GenesisBranch, id)
}

func TestGraph_S2LinearExtension(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))

	t1 := hashOf("T1")
	commitTipset(t, g, t1, 1, gen, GenesisBranch, 0)

	t2 := hashOf("T2")
	changes := commitTipset(t, g, t2, 2, t1, GenesisBranch, 1)

	require.Equal(t, []TipsetHash{t1}, changes.Removed)
	require.Equal(t, []TipsetHash{t2}, changes.Added)

	heads := g.Heads()
	require.Len(t, heads, 1)
	_, ok := heads[t2]
	require.True(t, ok)
}

func TestGraph_S3Fork(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))
	t1 := hashOf("T1")
	commitTipset(t, g, t1, 1, gen, GenesisBranch, 0)
	t2 := hashOf("T2")
	commitTipset(t, g, t2, 2, t1, GenesisBranch, 1)

	// G is interior to the genesis branch (which now spans G..T2), so the
	// fork first splits that branch above height 0; T1 becomes the bottom of
	// the split-off tail.
	t1b := hashOf("T1b")
	pos, err := g.FindStorePosition(TipsetInfo{Hash: t1b, Height: 1}, gen, GenesisBranch, 0)
	require.NoError(t, err)
	require.NotNil(t, pos.Rename)
	require.True(t, pos.Rename.Split)
	require.Equal(t, Height(0), pos.Rename.AboveHeight)
	g.SplitBranch(gen, t1, 1, *pos.Rename)
	g.StoreTipset(TipsetInfo{Hash: t1b, Height: 1}, gen, pos)

	heads := g.Heads()
	require.Len(t, heads, 2)
	_, ok := heads[t2]
	require.True(t, ok)
	_, ok = heads[t1b]
	require.True(t, ok)

	genBranch, err := g.GetBranch(GenesisBranch)
	require.NoError(t, err)
	require.Len(t, genBranch.Forks, 2)
}

func TestGraph_S4Split(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))
	// extend the genesis branch up to height 5 so it spans a single run.
	var prev TipsetHash = gen
	for h := Height(1); h <= 5; h++ {
		next := hashOf(tipsetLabel(h))
		commitTipset(t, g, next, h, prev, GenesisBranch, h-1)
		prev = next
	}

	b, err := g.GetBranch(GenesisBranch)
	require.NoError(t, err)
	require.Equal(t, Height(5), b.TopHeight)

	// X forks off T3, in parallel with T4 (the tipset that used to continue
	// the genesis branch immediately above the split point). The old branch
	// is shortened to end at T3, and its former tail [T4..T5] becomes a
	// fresh branch bottoming out at T4, per split_branch's invariant that a
	// split's new bottom height must exceed above_height.
	x := hashOf("X")
	t3 := hashOf(tipsetLabel(3))
	t4 := hashOf(tipsetLabel(4))
	pos, err := g.FindStorePosition(TipsetInfo{Hash: x, Height: 4}, t3, GenesisBranch, 3)
	require.NoError(t, err)
	require.NotNil(t, pos.Rename)
	require.True(t, pos.Rename.Split)
	require.Equal(t, Height(3), pos.Rename.AboveHeight)

	g.SplitBranch(t3, t4, 4, *pos.Rename)
	g.StoreTipset(TipsetInfo{Hash: x, Height: 4}, t3, pos)

	shortened, err := g.GetBranch(GenesisBranch)
	require.NoError(t, err)
	require.Equal(t, Height(3), shortened.TopHeight)
	require.Len(t, shortened.Forks, 2)

	tail, err := g.GetBranch(pos.Rename.NewId)
	require.NoError(t, err)
	require.Equal(t, t4, tail.Bottom)
	require.Equal(t, Height(4), tail.BottomHeight)

	xBranch, err := g.GetBranch(pos.AssignedBranch)
	require.NoError(t, err)
	require.NotEqual(t, pos.Rename.NewId, pos.AssignedBranch)
	require.Equal(t, x, xBranch.Bottom)

	heads := g.Heads()
	require.Len(t, heads, 2)
	t5 := hashOf(tipsetLabel(5))
	_, ok := heads[t5]
	require.True(t, ok)
	_, ok = heads[x]
	require.True(t, ok)
}

func TestGraph_S5MergeByLink(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))

	t4 := hashOf("T4")
	y := hashOf("Y")

	// Y@5 arrives first, with its parent (T4) not yet known: it becomes an
	// unloaded root keyed by T4.
	standalonePos, err := g.FindStorePosition(TipsetInfo{Hash: y, Height: 5}, t4, NoBranch, 0)
	require.NoError(t, err)
	require.Equal(t, NoBranch, standalonePos.OnTopBranch)
	g.StoreTipset(TipsetInfo{Hash: y, Height: 5}, t4, standalonePos)

	// T4 then arrives as a direct child of genesis: find_store_position sees
	// T4 both extending the genesis head and satisfying the waiting
	// unloaded root, so it reports a merge-by-rename.
	pos, err := g.FindStorePosition(TipsetInfo{Hash: t4, Height: 4}, gen, GenesisBranch, 0)
	require.NoError(t, err)
	require.NotNil(t, pos.Rename)
	require.False(t, pos.Rename.Split)

	changes := g.StoreTipset(TipsetInfo{Hash: t4, Height: 4}, gen, pos)
	require.Equal(t, []TipsetHash{y}, changes.Added)

	heads := g.Heads()
	require.Len(t, heads, 1)
	_, ok := heads[y]
	require.True(t, ok)

	genBranch, err := g.GetBranch(GenesisBranch)
	require.NoError(t, err)
	require.Equal(t, y, genBranch.Top)
	require.Equal(t, Height(5), genBranch.TopHeight)
}

func TestGraph_S6CycleRejection(t *testing.T) {
	g := NewGraph()
	rows := map[BranchId]PersistedBranch{
		2: {Id: 2, Top: hashOf("A"), TopHeight: 2, Bottom: hashOf("A0"), BottomHeight: 1, Parent: 3},
		3: {Id: 3, Top: hashOf("B"), TopHeight: 1, Bottom: hashOf("B0"), BottomHeight: 0, Parent: 2},
	}
	_, err := g.Init(rows)
	require.Error(t, err)
	require.Equal(t, chainerrors.GetErrorCode(chainerrors.ErrLoadError), chainerrors.GetErrorCode(err))
	require.True(t, g.Empty())
}

func TestGraph_CommonRootReflexiveAndCommutative(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))
	t1 := hashOf("T1")
	commitTipset(t, g, t1, 1, gen, GenesisBranch, 0)

	same, err := g.CommonRoot(GenesisBranch, GenesisBranch)
	require.NoError(t, err)
	require.Equal(t, GenesisBranch, same.Id)

	t1b := hashOf("T1b")
	pos, err := g.FindStorePosition(TipsetInfo{Hash: t1b, Height: 1}, gen, GenesisBranch, 0)
	require.NoError(t, err)
	g.StoreTipset(TipsetInfo{Hash: t1b, Height: 1}, gen, pos)

	idA := pos.AssignedBranch
	ab, err := g.CommonRoot(GenesisBranch, idA)
	require.NoError(t, err)
	ba, err := g.CommonRoot(idA, GenesisBranch)
	require.NoError(t, err)
	require.Equal(t, ab.Id, ba.Id)
}

func TestGraph_RouteEndpoints(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))
	t1 := hashOf("T1")
	commitTipset(t, g, t1, 1, gen, GenesisBranch, 0)
	t1b := hashOf("T1b")
	pos, err := g.FindStorePosition(TipsetInfo{Hash: t1b, Height: 1}, gen, GenesisBranch, 0)
	require.NoError(t, err)
	g.StoreTipset(TipsetInfo{Hash: t1b, Height: 1}, gen, pos)
	forkId := pos.AssignedBranch

	route, err := g.Route(GenesisBranch, forkId)
	require.NoError(t, err)
	require.Equal(t, GenesisBranch, route[0])
	require.Equal(t, forkId, route[len(route)-1])
	for i := 0; i+1 < len(route); i++ {
		next, ok := g.getBranch(route[i+1])
		require.True(t, ok)
		require.Equal(t, route[i], next.Parent)
	}
}

func TestGraph_InitRoundTripsHeadsAndForks(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))
	t1 := hashOf("T1")
	commitTipset(t, g, t1, 1, gen, GenesisBranch, 0)
	t2 := hashOf("T2")
	commitTipset(t, g, t2, 2, t1, GenesisBranch, 1)
	// T1b forks off G, which is interior to the genesis branch, so that
	// branch is split first (T1 is the bottom of the split-off tail).
	t1b := hashOf("T1b")
	pos, err := g.FindStorePosition(TipsetInfo{Hash: t1b, Height: 1}, gen, GenesisBranch, 0)
	require.NoError(t, err)
	require.NotNil(t, pos.Rename)
	g.SplitBranch(gen, t1, 1, *pos.Rename)
	g.StoreTipset(TipsetInfo{Hash: t1b, Height: 1}, gen, pos)

	rows := g.Export()

	g2 := NewGraph()
	_, err = g2.Init(rows)
	require.NoError(t, err)

	require.Equal(t, len(g.Heads()), len(g2.Heads()))
	for hash := range g.Heads() {
		_, ok := g2.Heads()[hash]
		require.True(t, ok)
	}
}

func TestGraph_SetCurrentHeadRejectsUnsynced(t *testing.T) {
	g := NewGraph()
	gen := hashOf("G")
	require.NoError(t, g.StoreGenesis(TipsetInfo{Hash: gen, Height: 0}))
	err := g.SetCurrentHead(BranchId(99), 0)
	require.Error(t, err)

	// A tipset whose parent is unknown becomes an unloaded root, which is
	// not synced to genesis and so cannot be selected as the current head.
	orphan := hashOf("orphan")
	missing := hashOf("missing")
	pos, err := g.FindStorePosition(TipsetInfo{Hash: orphan, Height: 7}, missing, NoBranch, 0)
	require.NoError(t, err)
	g.StoreTipset(TipsetInfo{Hash: orphan, Height: 7}, missing, pos)
	err = g.SetCurrentHead(pos.AssignedBranch, 7)
	require.ErrorIs(t, err, chainerrors.ErrHeadNotSynced)
}
