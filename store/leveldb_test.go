package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/chainidx/hamt"
	"github.com/stretchr/testify/require"
)

func TestLevelDB_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := OpenLevelDB(filepath.Join(t.TempDir(), "blocks"))
	require.NoError(t, err)
	defer db.Close()

	node := &hamt.SerializedNode{BitWidth: 8, Items: []hamt.SerializedItem{
		{Index: 4, Leaf: hamt.Leaf{"k": []byte("v")}},
	}}

	id, err := db.Put(ctx, node)
	require.NoError(t, err)

	has, err := db.Has(id)
	require.NoError(t, err)
	require.True(t, has)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, node.Items, got.Items)
}

func TestLevelDB_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocks")

	node := &hamt.SerializedNode{BitWidth: 8, Items: []hamt.SerializedItem{
		{Index: 1, Leaf: hamt.Leaf{"a": []byte("1")}},
	}}

	db, err := OpenLevelDB(path)
	require.NoError(t, err)
	id, err := db.Put(ctx, node)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := OpenLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, node.Items, got.Items)
}
