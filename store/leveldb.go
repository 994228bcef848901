package store

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/chainidx/hamt"
	"github.com/ipfs/go-cid"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB is a hamt.BlockStore backed by a goleveldb database, keyed by raw
// CID bytes. Unlike Memory it survives a process restart.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDB) Close() error {
	return s.db.Close()
}

func (s *LevelDB) Put(_ context.Context, node *hamt.SerializedNode) (cid.Cid, error) {
	raw := encode(node)
	c, err := deriveCID(raw)
	if err != nil {
		return cid.Cid{}, err
	}
	if err := s.db.Put(c.Bytes(), raw, nil); err != nil {
		return cid.Cid{}, fmt.Errorf("store: writing block %s: %w", c, err)
	}
	return c, nil
}

func (s *LevelDB) Get(_ context.Context, id cid.Cid) (*hamt.SerializedNode, error) {
	raw, err := s.db.Get(id.Bytes(), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, fmt.Errorf("store: block %s not found", id)
		}
		return nil, fmt.Errorf("store: reading block %s: %w", id, err)
	}
	return decode(raw)
}

// Has reports whether a block is present without deserializing it.
func (s *LevelDB) Has(id cid.Cid) (bool, error) {
	ok, err := s.db.Has(id.Bytes(), nil)
	if err != nil {
		return false, fmt.Errorf("store: checking block %s: %w", id, err)
	}
	return ok, nil
}
