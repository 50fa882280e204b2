// Package stores contains the state-store contracts and the byte-oriented
// backends they run on. Typed stores wrap a StoreBackend and delegate all
// key/value encoding to serdes.
package stores

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound = errors.New("stores: key not found")

	// ErrStoreNotOpen is returned when a store is used before Init.
	ErrStoreNotOpen = errors.New("stores: store not initialized")

	// ErrStoreClosed is returned when a store is used after Close.
	ErrStoreClosed = errors.New("stores: store closed")
)

// StateStore is the lifecycle shared by every store. Init must be called
// before any read or write; Close is terminal.
type StateStore interface {
	Name() string
	Init() error
	Flush(ctx context.Context) error
	Close() error
}

// Iterator is a one-shot cursor over a byte range scan. It starts before the
// first entry; callers must Close it to release backend resources. It is not
// restartable.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// StoreBackend is the low-level byte-oriented store interface implemented by
// the memory and pebble backends. Range scans cover [lower, upper) in
// lexicographic key order. Backends must be safe for concurrent use by
// independent callers.
type StoreBackend interface {
	StateStore
	Set(k, v []byte) error
	Get(k []byte) ([]byte, error)
	Delete(k []byte) error
	Range(lower, upper []byte) (Iterator, error)
	All() (Iterator, error)
}

// BackendBuilder creates one backend instance per store name and partition.
type BackendBuilder func(name string, partition int32) (StoreBackend, error)

type storeState uint8

const (
	stateCreated storeState = iota
	stateOpen
	stateClosed
)

func (s storeState) guard() error {
	switch s {
	case stateCreated:
		return ErrStoreNotOpen
	case stateClosed:
		return ErrStoreClosed
	}
	return nil
}
