package hamt

import "context"

// Flush recursively replaces every inline node with its CID, bottom-up,
// and returns the new root CID.
func (h *Hamt) Flush(ctx context.Context) (CID, error) {
	if err := h.flush(ctx, h.root); err != nil {
		return CID{}, err
	}
	return h.root.cid, nil
}

func (h *Hamt) flush(ctx context.Context, item *Item) error {
	if !item.isNode() {
		return nil
	}
	node := item.node
	for _, child := range node.Items {
		if err := h.flush(ctx, child); err != nil {
			return err
		}
	}
	c, err := h.store.Put(ctx, serialize(node, h.bitWidth))
	if err != nil {
		return err
	}
	*item = *cidItem(c)
	return nil
}
