package hamt

import (
	"context"
	"sort"
)

// SerializedItem is one entry of a SerializedNode's ordered item list: it
// carries either a CID reference to a child block or an inline leaf
// bucket, keyed by its index within the parent's [0, 2^bitWidth) range.
type SerializedItem struct {
	Index uint64
	Child *CID
	Leaf  Leaf
}

// SerializedNode is the canonical tagged-object form handed to a BlockStore:
// the bit-width the node was built with, and its populated items in
// ascending index order.
type SerializedNode struct {
	BitWidth uint
	Items    []SerializedItem
}

// BlockStore is the content-addressed store Hamt writes through during
// Flush and reads from during Get/Set/Remove/Visit. Implementations must
// present a synchronous interface; they may be backed by non-blocking
// primitives internally.
type BlockStore interface {
	Put(ctx context.Context, node *SerializedNode) (CID, error)
	Get(ctx context.Context, id CID) (*SerializedNode, error)
}

func serialize(n *Node, bitWidth uint) *SerializedNode {
	sn := &SerializedNode{BitWidth: bitWidth, Items: make([]SerializedItem, 0, len(n.Items))}
	for idx, it := range n.Items {
		si := SerializedItem{Index: idx}
		if it.isLeaf() {
			si.Leaf = it.leaf.copy()
		} else if it.isCID() {
			c := it.cid
			si.Child = &c
		} else {
			panic("hamt: serialize: item not flushed to a CID or leaf")
		}
		sn.Items = append(sn.Items, si)
	}
	sortItems(sn.Items)
	return sn
}

func deserialize(sn *SerializedNode) *Node {
	n := newNode()
	for _, si := range sn.Items {
		if si.Child != nil {
			n.Items[si.Index] = cidItem(*si.Child)
		} else {
			n.Items[si.Index] = leafItem(si.Leaf.copy())
		}
	}
	return n
}

func sortItems(items []SerializedItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })
}
