package stores

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 16

type kvEntry struct {
	key   []byte
	value []byte
}

// MemoryBackend is an ordered in-memory StoreBackend. It is used by tests
// and stateless deployments where spilling to disk buys nothing.
type MemoryBackend struct {
	name string

	mu    sync.RWMutex
	tree  *btree.BTreeG[kvEntry]
	state storeState
}

// NewMemoryBackend creates an in-memory backend with the given store name.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{
		name: name,
		tree: btree.NewG(btreeDegree, func(a, b kvEntry) bool {
			return bytes.Compare(a.key, b.key) < 0
		}),
	}
}

// MemoryBackendBuilder is a BackendBuilder for in-memory stores.
func MemoryBackendBuilder(name string, partition int32) (StoreBackend, error) {
	return NewMemoryBackend(name), nil
}

func (m *MemoryBackend) Name() string { return m.name }

func (m *MemoryBackend) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == stateClosed {
		return ErrStoreClosed
	}
	m.state = stateOpen
	return nil
}

func (m *MemoryBackend) Flush(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.guard()
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = stateClosed
	m.tree.Clear(false)
	return nil
}

func (m *MemoryBackend) Set(k, v []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.state.guard(); err != nil {
		return err
	}

	entry := kvEntry{key: append([]byte(nil), k...), value: append([]byte(nil), v...)}
	m.tree.ReplaceOrInsert(entry)
	return nil
}

func (m *MemoryBackend) Get(k []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.state.guard(); err != nil {
		return nil, err
	}

	entry, ok := m.tree.Get(kvEntry{key: k})
	if !ok {
		return nil, ErrKeyNotFound
	}
	res := make([]byte, len(entry.value))
	copy(res, entry.value)
	return res, nil
}

func (m *MemoryBackend) Delete(k []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.state.guard(); err != nil {
		return err
	}

	m.tree.Delete(kvEntry{key: k})
	return nil
}

func (m *MemoryBackend) Range(lower, upper []byte) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.state.guard(); err != nil {
		return nil, err
	}

	var entries []kvEntry
	m.tree.AscendRange(kvEntry{key: lower}, kvEntry{key: upper}, func(e kvEntry) bool {
		entries = append(entries, e)
		return true
	})
	return &sliceIterator{entries: entries}, nil
}

func (m *MemoryBackend) All() (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.state.guard(); err != nil {
		return nil, err
	}

	var entries []kvEntry
	m.tree.Ascend(func(e kvEntry) bool {
		entries = append(entries, e)
		return true
	})
	return &sliceIterator{entries: entries}, nil
}

// sliceIterator cursors over a snapshot taken under the read lock, so the
// cursor stays valid while concurrent writers mutate the tree.
type sliceIterator struct {
	entries []kvEntry
	pos     int
	started bool
	closed  bool
}

func (it *sliceIterator) Next() bool {
	if it.closed {
		return false
	}
	if !it.started {
		it.started = true
	} else {
		it.pos++
	}
	return it.pos < len(it.entries)
}

func (it *sliceIterator) Key() []byte {
	if !it.started || it.pos >= len(it.entries) {
		return nil
	}
	return it.entries[it.pos].key
}

func (it *sliceIterator) Value() []byte {
	if !it.started || it.pos >= len(it.entries) {
		return nil
	}
	return it.entries[it.pos].value
}

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close() error {
	it.closed = true
	it.entries = nil
	return nil
}

var _ StoreBackend = (*MemoryBackend)(nil)
