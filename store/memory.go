package store

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/chainidx/hamt"
	"github.com/ipfs/go-cid"
)

// Memory is a hamt.BlockStore backed by a plain map. It is not safe for
// concurrent use by multiple goroutines, matching the single-owner
// assumption the Hamt itself makes.
type Memory struct {
	blocks map[cid.Cid][]byte
}

// NewMemory returns an empty in-memory block store.
func NewMemory() *Memory {
	return &Memory{blocks: make(map[cid.Cid][]byte)}
}

func (m *Memory) Put(_ context.Context, node *hamt.SerializedNode) (cid.Cid, error) {
	raw := encode(node)
	c, err := deriveCID(raw)
	if err != nil {
		return cid.Cid{}, err
	}
	m.blocks[c] = raw
	return c, nil
}

func (m *Memory) Get(_ context.Context, id cid.Cid) (*hamt.SerializedNode, error) {
	raw, ok := m.blocks[id]
	if !ok {
		return nil, fmt.Errorf("store: block %s not found", id)
	}
	return decode(raw)
}

// Len reports how many distinct blocks are held.
func (m *Memory) Len() int { return len(m.blocks) }
