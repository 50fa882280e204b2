// Package serde provides the serializer/deserializer pairs used by sources,
// sinks and state stores. Serdes are plain functions so user code can supply
// closures without implementing an interface.
package serde

type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

type Serializer[T any] func(T) ([]byte, error)

type Deserializer[T any] func([]byte) (T, error)
