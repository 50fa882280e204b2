package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/streamhaus/streamhaus/serde"
)

// WindowStoreIterator is a lazy one-shot cursor over the (timestamp, value)
// pairs of a Fetch. Entries arrive in non-decreasing timestamp order. The
// caller must Close it; abandoning it mid-scan releases the underlying
// backend cursor on Close without draining the range.
type WindowStoreIterator[V any] interface {
	Next() bool
	Timestamp() int64
	Value() V
	Err() error
	Close() error
}

// WindowStore stores values keyed by record key and event time. Writes with
// explicit timestamps may arrive out of order; range reads place them
// correctly. Put and Fetch are safe for concurrent use by independent
// callers.
type WindowStore[K, V any] struct {
	name    string
	backend StoreBackend

	keySerializer   serde.Serializer[K]
	valueSerializer serde.Serializer[V]
	valueDeser      serde.Deserializer[V]

	now func() time.Time

	mu    sync.RWMutex
	state storeState
}

// NewWindowStore creates a windowed store over the given backend.
func NewWindowStore[K, V any](name string, backend StoreBackend, keySerde serde.Serde[K], valueSerde serde.Serde[V]) *WindowStore[K, V] {
	return &WindowStore[K, V]{
		name:            name,
		backend:         backend,
		keySerializer:   keySerde.Serializer,
		valueSerializer: valueSerde.Serializer,
		valueDeser:      valueSerde.Deserializer,
		now:             time.Now,
	}
}

// WindowStoreBuilder returns a store builder producing one windowed store
// instance per partition.
func WindowStoreBuilder[K, V any](backendBuilder BackendBuilder, keySerde serde.Serde[K], valueSerde serde.Serde[V]) func(name string, partition int32) (StateStore, error) {
	return func(name string, partition int32) (StateStore, error) {
		backend, err := backendBuilder(name, partition)
		if err != nil {
			return nil, err
		}
		return NewWindowStore(name, backend, keySerde, valueSerde), nil
	}
}

func (s *WindowStore[K, V]) Name() string { return s.name }

func (s *WindowStore[K, V]) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return ErrStoreClosed
	}
	if err := s.backend.Init(); err != nil {
		return err
	}
	s.state = stateOpen
	return nil
}

func (s *WindowStore[K, V]) Flush(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.state.guard(); err != nil {
		return err
	}
	return s.backend.Flush(ctx)
}

func (s *WindowStore[K, V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed
	return s.backend.Close()
}

// Put writes a value with the current wall-clock time as its timestamp.
func (s *WindowStore[K, V]) Put(key K, value V) error {
	return s.PutAt(key, value, s.now().UnixMilli())
}

// PutAt writes a value with an explicit timestamp in milliseconds since
// epoch. Timestamps need not be monotonic across calls.
func (s *WindowStore[K, V]) PutAt(key K, value V, timestampMs int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.state.guard(); err != nil {
		return err
	}

	keyBytes, err := s.keySerializer(key)
	if err != nil {
		return err
	}
	valueBytes, err := s.valueSerializer(value)
	if err != nil {
		return err
	}
	return s.backend.Set(serde.EncodeWindowStart(keyBytes, timestampMs), valueBytes)
}

// Fetch returns a cursor over every entry written for key with a timestamp
// in the inclusive range [timeFrom, timeTo]. An empty range yields an
// immediately exhausted cursor, not an error.
func (s *WindowStore[K, V]) Fetch(key K, timeFrom, timeTo int64) (WindowStoreIterator[V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.state.guard(); err != nil {
		return nil, err
	}
	if timeTo < timeFrom {
		return emptyWindowIterator[V]{}, nil
	}

	keyBytes, err := s.keySerializer(key)
	if err != nil {
		return nil, err
	}

	lower := serde.EncodeWindowStart(keyBytes, timeFrom)
	// The scan upper bound is exclusive; bump the suffix by one to include
	// entries at exactly timeTo.
	upper := make([]byte, len(keyBytes)+8)
	copy(upper, keyBytes)
	binary.BigEndian.PutUint64(upper[len(keyBytes):], uint64(timeTo)+1)

	backendIter, err := s.backend.Range(lower, upper)
	if err != nil {
		return nil, err
	}
	return &windowIterator[V]{
		iter:       backendIter,
		keyLen:     len(keyBytes),
		keyBytes:   keyBytes,
		valueDeser: s.valueDeser,
	}, nil
}

// windowIterator decodes backend entries and skips entries whose key merely
// shares a byte prefix with the fetched key but is longer.
type windowIterator[V any] struct {
	iter       Iterator
	keyLen     int
	keyBytes   []byte
	valueDeser serde.Deserializer[V]

	timestamp int64
	value     V
	err       error
}

func (it *windowIterator[V]) Next() bool {
	if it.err != nil {
		return false
	}
	for it.iter.Next() {
		encodedKey := it.iter.Key()
		if len(encodedKey) != it.keyLen+8 || !bytes.HasPrefix(encodedKey, it.keyBytes) {
			continue
		}
		_, start, err := serde.DecodeWindowStart(encodedKey)
		if err != nil {
			it.err = err
			return false
		}
		value, err := it.valueDeser(it.iter.Value())
		if err != nil {
			it.err = err
			return false
		}
		it.timestamp = start
		it.value = value
		return true
	}
	it.err = it.iter.Err()
	return false
}

func (it *windowIterator[V]) Timestamp() int64 { return it.timestamp }
func (it *windowIterator[V]) Value() V         { return it.value }
func (it *windowIterator[V]) Err() error       { return it.err }
func (it *windowIterator[V]) Close() error     { return it.iter.Close() }

type emptyWindowIterator[V any] struct{}

func (emptyWindowIterator[V]) Next() bool       { return false }
func (emptyWindowIterator[V]) Timestamp() int64 { return 0 }
func (emptyWindowIterator[V]) Value() (v V)     { return v }
func (emptyWindowIterator[V]) Err() error       { return nil }
func (emptyWindowIterator[V]) Close() error     { return nil }

var _ StateStore = (*WindowStore[string, string])(nil)
