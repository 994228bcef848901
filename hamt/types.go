// Package hamt implements a persistent hash-array-mapped trie keyed by
// opaque strings and valued by opaque byte strings, serialized through a
// pluggable content-addressed block store.
package hamt

import (
	"github.com/ipfs/go-cid"
)

// Key is an opaque string key into the trie.
type Key = string

// Value is an opaque byte-string value.
type Value = []byte

// CID is the content address of a serialized interior node.
type CID = cid.Cid

// Leaf is a small inline bucket of key/value pairs, holding at most the
// trie's configured LeafMax entries.
type Leaf map[Key]Value

func (l Leaf) copy() Leaf {
	out := make(Leaf, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Item is the sum type living at each populated index of a Node: either an
// owned, inline Node, a lazy CID reference to one not yet loaded, or a leaf
// bucket. Exactly one field is non-nil/non-zero at a time.
type Item struct {
	node *Node
	cid  CID
	leaf Leaf
}

func leafItem(l Leaf) *Item  { return &Item{leaf: l} }
func nodeItem(n *Node) *Item { return &Item{node: n} }
func cidItem(c CID) *Item    { return &Item{cid: c} }

func (it *Item) isLeaf() bool { return it.leaf != nil }
func (it *Item) isCID() bool  { return it.node == nil && it.leaf == nil && it.cid.Defined() }
func (it *Item) isNode() bool { return it.node != nil }

// Node is one interior point of the trie: a sparse mapping from index to
// Item, indices ranging over [0, 2^bitWidth).
type Node struct {
	Items map[uint64]*Item
}

func newNode() *Node {
	return &Node{Items: make(map[uint64]*Item)}
}
