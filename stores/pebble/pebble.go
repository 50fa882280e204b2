// Package pebble provides a persistent StoreBackend on cockroachdb/pebble.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/streamhaus/streamhaus/stores"
)

type pebbleBackend struct {
	name string
	dir  string
	db   *pebble.DB
}

// NewBackendBuilder returns a BackendBuilder that opens one pebble database
// per store name and partition under stateDir.
func NewBackendBuilder(stateDir string) stores.BackendBuilder {
	return func(name string, partition int32) (stores.StoreBackend, error) {
		if stateDir == "" {
			stateDir = filepath.Join("/tmp", "streamhaus")
		}
		dir := filepath.Join(stateDir, name, fmt.Sprintf("partition-%d", partition))
		return &pebbleBackend{name: name, dir: dir}, nil
	}
}

func (s *pebbleBackend) Name() string { return s.name }

func (s *pebbleBackend) Init() error {
	if s.db != nil {
		return nil
	}
	db, err := pebble.Open(s.dir, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("pebble: failed to open %s: %w", s.dir, err)
	}
	s.db = db
	return nil
}

func (s *pebbleBackend) Flush(ctx context.Context) error {
	if s.db == nil {
		return stores.ErrStoreNotOpen
	}
	return s.db.Flush()
}

func (s *pebbleBackend) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Flush(); err != nil {
		return err
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *pebbleBackend) Set(k, v []byte) error {
	if s.db == nil {
		return stores.ErrStoreNotOpen
	}
	// Treat nil (==tombstone) as delete.
	if v == nil {
		return s.db.Delete(k, pebble.NoSync)
	}
	return s.db.Set(k, v, pebble.NoSync)
}

func (s *pebbleBackend) Get(k []byte) ([]byte, error) {
	if s.db == nil {
		return nil, stores.ErrStoreNotOpen
	}
	v, closer, err := s.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, stores.ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	res := make([]byte, len(v))
	copy(res, v)
	return res, nil
}

func (s *pebbleBackend) Delete(k []byte) error {
	if s.db == nil {
		return stores.ErrStoreNotOpen
	}
	return s.db.Delete(k, pebble.NoSync)
}

func (s *pebbleBackend) Range(lower, upper []byte) (stores.Iterator, error) {
	if s.db == nil {
		return nil, stores.ErrStoreNotOpen
	}
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	return &pebbleIterator{iter: iter}, nil
}

func (s *pebbleBackend) All() (stores.Iterator, error) {
	if s.db == nil {
		return nil, stores.ErrStoreNotOpen
	}
	iter := s.db.NewIter(nil)
	return &pebbleIterator{iter: iter}, nil
}

// pebbleIterator adapts pebble.Iterator to the stores.Iterator cursor
// contract. Keys and values are copied; pebble reuses its buffers between
// positioning calls.
type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
	valid   bool
	err     error
}

func (it *pebbleIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		it.valid = it.iter.First()
	} else {
		it.valid = it.iter.Next()
	}
	if !it.valid {
		it.err = it.iter.Error()
		return false
	}
	return true
}

func (it *pebbleIterator) Key() []byte {
	if !it.valid {
		return nil
	}
	key := it.iter.Key()
	res := make([]byte, len(key))
	copy(res, key)
	return res
}

func (it *pebbleIterator) Value() []byte {
	if !it.valid {
		return nil
	}
	value, err := it.iter.ValueAndErr()
	if err != nil {
		it.err = err
		return nil
	}
	res := make([]byte, len(value))
	copy(res, value)
	return res
}

func (it *pebbleIterator) Err() error { return it.err }

func (it *pebbleIterator) Close() error { return it.iter.Close() }

var _ stores.StoreBackend = (*pebbleBackend)(nil)
