package hamt

import (
	"context"
	"sort"
)

// Visitor is called once per (key, value) pair during Visit, in the order
// the trie's leaves are walked.
type Visitor func(key Key, value Value) error

// Visit walks every leaf in the trie, in-order (children by ascending index,
// a leaf's entries by ascending key), loading CID-referenced nodes from the
// block store as needed.
func (h *Hamt) Visit(ctx context.Context, visitor Visitor) error {
	return h.visit(ctx, h.root, visitor)
}

func (h *Hamt) visit(ctx context.Context, item *Item, visitor Visitor) error {
	if err := h.loadItem(ctx, item); err != nil {
		return err
	}
	if item.isNode() {
		indices := make([]uint64, 0, len(item.node.Items))
		for idx := range item.node.Items {
			indices = append(indices, idx)
		}
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
		for _, idx := range indices {
			if err := h.visit(ctx, item.node.Items[idx], visitor); err != nil {
				return err
			}
		}
		return nil
	}
	keys := make([]Key, 0, len(item.leaf))
	for k := range item.leaf {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := visitor(k, item.leaf[k]); err != nil {
			return err
		}
	}
	return nil
}
