package hamt

import (
	"context"

	"github.com/colorfulnotion/chainidx/chainerrors"
)

const defaultBitWidth = 8

// DefaultLeafMax is the fixed bucket size named by the design: a leaf may
// hold at most this many entries before it is promoted to an interior node.
const DefaultLeafMax = 3

// Hamt is a persistent map keyed by opaque strings, valued by opaque byte
// strings, backed by a content-addressed BlockStore. It is single-owner
// and not internally synchronized.
type Hamt struct {
	store    BlockStore
	root     *Item
	bitWidth uint
	leafMax  int
}

// New returns an empty Hamt over store, using bitWidth-bit trie indices and
// leafMax as the bucket size before promotion to an interior node.
func New(store BlockStore, bitWidth uint, leafMax int) *Hamt {
	if bitWidth == 0 {
		bitWidth = defaultBitWidth
	}
	if leafMax <= 0 {
		leafMax = DefaultLeafMax
	}
	return &Hamt{
		store:    store,
		root:     nodeItem(newNode()),
		bitWidth: bitWidth,
		leafMax:  leafMax,
	}
}

// Load returns a Hamt whose root is the (not yet fetched) node at root.
func Load(store BlockStore, root CID, bitWidth uint, leafMax int) *Hamt {
	h := New(store, bitWidth, leafMax)
	h.root = cidItem(root)
	return h
}

// CID returns the root's content address. Valid only after Flush.
func (h *Hamt) CID() (CID, error) {
	if !h.root.isCID() {
		return CID{}, chainerrors.ErrExpectedCID
	}
	return h.root.cid, nil
}

func (h *Hamt) loadItem(ctx context.Context, it *Item) error {
	if !it.isCID() {
		return nil
	}
	sn, err := h.store.Get(ctx, it.cid)
	if err != nil {
		return err
	}
	it.node = deserialize(sn)
	it.cid = CID{}
	return nil
}

func (h *Hamt) rootNode(ctx context.Context) (*Node, error) {
	if err := h.loadItem(ctx, h.root); err != nil {
		return nil, err
	}
	return h.root.node, nil
}

// Get returns the value stored for key, or chainerrors.ErrNotFound if
// absent, or chainerrors.ErrMaxDepth if the index sequence is exhausted
// while still inside an interior node.
func (h *Hamt) Get(ctx context.Context, key Key) (Value, error) {
	node, err := h.rootNode(ctx)
	if err != nil {
		return nil, err
	}

	for _, index := range keyToIndices(key, h.bitWidth, -1) {
		it, ok := node.Items[index]
		if !ok {
			return nil, chainerrors.ErrNotFound
		}
		if err := h.loadItem(ctx, it); err != nil {
			return nil, err
		}
		if it.isNode() {
			node = it.node
			continue
		}
		v, ok := it.leaf[key]
		if !ok {
			return nil, chainerrors.ErrNotFound
		}
		return v, nil
	}
	return nil, chainerrors.ErrMaxDepth
}

// Contains reports whether key is present, collapsing ErrNotFound to false.
func (h *Hamt) Contains(ctx context.Context, key Key) (bool, error) {
	_, err := h.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if chainerrors.GetErrorCode(err) == chainerrors.GetErrorCode(chainerrors.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Set inserts or overwrites key's value, promoting an overflowing leaf to
// an interior node as needed.
func (h *Hamt) Set(ctx context.Context, key Key, value Value) error {
	node, err := h.rootNode(ctx)
	if err != nil {
		return err
	}
	return h.set(ctx, node, keyToIndices(key, h.bitWidth, -1), key, value)
}

func (h *Hamt) set(ctx context.Context, node *Node, indices []uint64, key Key, value Value) error {
	if len(indices) == 0 {
		return chainerrors.ErrMaxDepth
	}
	index := indices[0]

	it, ok := node.Items[index]
	if !ok {
		node.Items[index] = leafItem(Leaf{key: value})
		return nil
	}

	if err := h.loadItem(ctx, it); err != nil {
		return err
	}

	if it.isNode() {
		return h.set(ctx, it.node, indices[1:], key, value)
	}

	if _, exists := it.leaf[key]; exists || len(it.leaf) < h.leafMax {
		it.leaf[key] = value
		return nil
	}

	child := newNode()
	if err := h.set(ctx, child, indices[1:], key, value); err != nil {
		return err
	}
	for k, v := range it.leaf {
		suffixIndices := keyToIndices(k, h.bitWidth, len(indices))
		if err := h.set(ctx, child, suffixIndices, k, v); err != nil {
			return err
		}
	}
	*it = *nodeItem(child)
	return nil
}

// Remove deletes key, running cleanShard on every interior node below the
// root visited on the way back up; the root node itself is never collapsed.
func (h *Hamt) Remove(ctx context.Context, key Key) error {
	node, err := h.rootNode(ctx)
	if err != nil {
		return err
	}
	return h.remove(ctx, node, keyToIndices(key, h.bitWidth, -1), key)
}

func (h *Hamt) remove(ctx context.Context, node *Node, indices []uint64, key Key) error {
	if len(indices) == 0 {
		return chainerrors.ErrMaxDepth
	}
	index := indices[0]

	it, ok := node.Items[index]
	if !ok {
		return chainerrors.ErrNotFound
	}

	if err := h.loadItem(ctx, it); err != nil {
		return err
	}

	if it.isNode() {
		if err := h.remove(ctx, it.node, indices[1:], key); err != nil {
			return err
		}
		h.cleanShard(it, h.leafMax)
		return nil
	}

	if _, exists := it.leaf[key]; !exists {
		return chainerrors.ErrNotFound
	}
	if len(it.leaf) == 1 {
		delete(node.Items, index)
	} else {
		delete(it.leaf, key)
	}
	return nil
}

// cleanShard collapses item (known to be an interior node) per the
// compaction rules: a lone leaf child replaces the item outright; an
// all-leaf set of children small enough to fit in one bucket is merged.
func (h *Hamt) cleanShard(item *Item, leafMax int) {
	node := item.node

	if len(node.Items) == 1 {
		for _, only := range node.Items {
			if only.isLeaf() {
				*item = Item{leaf: only.leaf}
			}
		}
		return
	}

	if len(node.Items) <= leafMax {
		merged := Leaf{}
		for _, child := range node.Items {
			if !child.isLeaf() {
				return
			}
			for k, v := range child.leaf {
				merged[k] = v
				if len(merged) > leafMax {
					return
				}
			}
		}
		*item = Item{leaf: merged}
	}
}
