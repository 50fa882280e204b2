package stores

import (
	"context"

	"github.com/streamhaus/streamhaus/serde"
)

// KeyValueStore is a typed point-lookup store over a byte backend, used by
// table-source processors to materialize the latest value per key.
type KeyValueStore[K, V any] struct {
	name    string
	backend StoreBackend

	keySerializer   serde.Serializer[K]
	valueSerializer serde.Serializer[V]
	valueDeser      serde.Deserializer[V]
}

func NewKeyValueStore[K, V any](name string, backend StoreBackend, keySerde serde.Serde[K], valueSerde serde.Serde[V]) *KeyValueStore[K, V] {
	return &KeyValueStore[K, V]{
		name:            name,
		backend:         backend,
		keySerializer:   keySerde.Serializer,
		valueSerializer: valueSerde.Serializer,
		valueDeser:      valueSerde.Deserializer,
	}
}

// KeyValueStoreBuilder returns a store builder producing one key-value store
// instance per partition.
func KeyValueStoreBuilder[K, V any](backendBuilder BackendBuilder, keySerde serde.Serde[K], valueSerde serde.Serde[V]) func(name string, partition int32) (StateStore, error) {
	return func(name string, partition int32) (StateStore, error) {
		backend, err := backendBuilder(name, partition)
		if err != nil {
			return nil, err
		}
		return NewKeyValueStore(name, backend, keySerde, valueSerde), nil
	}
}

func (s *KeyValueStore[K, V]) Name() string { return s.name }

func (s *KeyValueStore[K, V]) Init() error { return s.backend.Init() }

func (s *KeyValueStore[K, V]) Flush(ctx context.Context) error { return s.backend.Flush(ctx) }

func (s *KeyValueStore[K, V]) Close() error { return s.backend.Close() }

func (s *KeyValueStore[K, V]) Set(key K, value V) error {
	keyBytes, err := s.keySerializer(key)
	if err != nil {
		return err
	}
	valueBytes, err := s.valueSerializer(value)
	if err != nil {
		return err
	}
	return s.backend.Set(keyBytes, valueBytes)
}

func (s *KeyValueStore[K, V]) Get(key K) (V, error) {
	var v V
	keyBytes, err := s.keySerializer(key)
	if err != nil {
		return v, err
	}
	res, err := s.backend.Get(keyBytes)
	if err != nil {
		return v, err
	}
	return s.valueDeser(res)
}

func (s *KeyValueStore[K, V]) Delete(key K) error {
	keyBytes, err := s.keySerializer(key)
	if err != nil {
		return err
	}
	return s.backend.Delete(keyBytes)
}

var _ StateStore = (*KeyValueStore[string, string])(nil)
