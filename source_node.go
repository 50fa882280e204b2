package streamhaus

import (
	"context"

	"github.com/streamhaus/streamhaus/serde"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RawRecordProcessor is the entry point of a task: it accepts polled records
// before any deserialization happened.
type RawRecordProcessor interface {
	Process(ctx context.Context, record *kgo.Record) error
}

// SourceNode deserializes raw records and forwards the typed key/value to
// all downstream processors.
type SourceNode[K, V any] struct {
	keyDeserializer   serde.Deserializer[K]
	valueDeserializer serde.Deserializer[V]

	downstream map[string]InputProcessor[K, V]
}

func newSourceNode[K, V any](keyDeserializer serde.Deserializer[K], valueDeserializer serde.Deserializer[V]) *SourceNode[K, V] {
	return &SourceNode[K, V]{
		keyDeserializer:   keyDeserializer,
		valueDeserializer: valueDeserializer,
		downstream:        map[string]InputProcessor[K, V]{},
	}
}

func (n *SourceNode[K, V]) Process(ctx context.Context, record *kgo.Record) error {
	key, err := n.keyDeserializer(record.Key)
	if err != nil {
		return err
	}
	value, err := n.valueDeserializer(record.Value)
	if err != nil {
		return err
	}

	for _, next := range n.downstream {
		if err := next.Process(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

var _ RawRecordProcessor = (*SourceNode[any, any])(nil)
