// Package store provides BlockStore implementations for the hamt package:
// an in-memory map for tests and short-lived processes, and a LevelDB-backed
// store for anything that needs to survive a restart.
package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/colorfulnotion/chainidx/hamt"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// encode produces the deterministic byte form of a SerializedNode that gets
// content-addressed. The layout (bit-width, item count, then each item as
// index + kind tag + payload) only has to be stable across two encodings
// of the same logical node — it makes no claim to match any external
// chain's wire format, which the design treats as orthogonal to the trie's
// algorithms.
func encode(n *hamt.SerializedNode) []byte {
	items := append([]hamt.SerializedItem(nil), n.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })

	var buf bytes.Buffer
	writeUvarint(&buf, uint64(n.BitWidth))
	writeUvarint(&buf, uint64(len(items)))
	for _, it := range items {
		writeUvarint(&buf, it.Index)
		if it.Child != nil {
			buf.WriteByte(0)
			b := it.Child.Bytes()
			writeUvarint(&buf, uint64(len(b)))
			buf.Write(b)
			continue
		}
		buf.WriteByte(1)
		keys := make([]string, 0, len(it.Leaf))
		for k := range it.Leaf {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeUvarint(&buf, uint64(len(keys)))
		for _, k := range keys {
			writeUvarint(&buf, uint64(len(k)))
			buf.WriteString(k)
			v := it.Leaf[k]
			writeUvarint(&buf, uint64(len(v)))
			buf.Write(v)
		}
	}
	return buf.Bytes()
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// deriveCID content-addresses an encoded block with a SHA-256 multihash,
// wrapped as a raw-codec CIDv1 — the same shape go-hamt-ipld uses for its
// block references.
func deriveCID(encoded []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(encoded, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Cid{}, fmt.Errorf("store: hashing block: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

func decode(raw []byte) (*hamt.SerializedNode, error) {
	r := bytes.NewReader(raw)

	bitWidth, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("store: decoding bit width: %w", err)
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("store: decoding item count: %w", err)
	}

	sn := &hamt.SerializedNode{BitWidth: uint(bitWidth), Items: make([]hamt.SerializedItem, 0, count)}
	for i := uint64(0); i < count; i++ {
		index, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("store: decoding item index: %w", err)
		}
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("store: decoding item tag: %w", err)
		}

		si := hamt.SerializedItem{Index: index}
		if tag == 0 {
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("store: decoding child CID length: %w", err)
			}
			buf := make([]byte, n)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("store: decoding child CID: %w", err)
			}
			c, err := cid.Cast(buf)
			if err != nil {
				return nil, fmt.Errorf("store: casting child CID: %w", err)
			}
			si.Child = &c
		} else {
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("store: decoding leaf size: %w", err)
			}
			leaf := make(hamt.Leaf, n)
			for j := uint64(0); j < n; j++ {
				klen, err := binary.ReadUvarint(r)
				if err != nil {
					return nil, fmt.Errorf("store: decoding leaf key length: %w", err)
				}
				kbuf := make([]byte, klen)
				if _, err := io.ReadFull(r, kbuf); err != nil {
					return nil, fmt.Errorf("store: decoding leaf key: %w", err)
				}
				vlen, err := binary.ReadUvarint(r)
				if err != nil {
					return nil, fmt.Errorf("store: decoding leaf value length: %w", err)
				}
				vbuf := make([]byte, vlen)
				if _, err := io.ReadFull(r, vbuf); err != nil {
					return nil, fmt.Errorf("store: decoding leaf value: %w", err)
				}
				leaf[string(kbuf)] = vbuf
			}
			si.Leaf = leaf
		}
		sn.Items = append(sn.Items, si)
	}
	return sn, nil
}
