package store

import (
	"context"
	"testing"

	"github.com/colorfulnotion/chainidx/hamt"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	child := cid.NewCidV1(cid.Raw, mustMultihash(t, []byte("child-block")))
	node := &hamt.SerializedNode{
		BitWidth: 8,
		Items: []hamt.SerializedItem{
			{Index: 3, Child: &child},
			{Index: 9, Leaf: hamt.Leaf{"a": []byte("1"), "b": []byte("2")}},
		},
	}

	id, err := m.Put(ctx, node)
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, node.BitWidth, got.BitWidth)
	require.ElementsMatch(t, node.Items, got.Items)
}

func TestMemory_PutIsContentAddressed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	node := &hamt.SerializedNode{BitWidth: 8, Items: []hamt.SerializedItem{
		{Index: 1, Leaf: hamt.Leaf{"x": []byte("y")}},
	}}

	id1, err := m.Put(ctx, node)
	require.NoError(t, err)
	id2, err := m.Put(ctx, node)
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, 1, m.Len())
}

func TestMemory_GetMissingBlockErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Get(ctx, cid.NewCidV1(cid.Raw, mustMultihash(t, []byte("nope"))))
	require.Error(t, err)
}

func mustMultihash(t *testing.T, data []byte) []byte {
	t.Helper()
	c, err := deriveCID(data)
	require.NoError(t, err)
	return c.Hash()
}
