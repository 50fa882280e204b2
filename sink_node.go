package streamhaus

import (
	"context"
	"fmt"
	"sync"

	"github.com/streamhaus/streamhaus/serde"
	"github.com/twmb/franz-go/pkg/kgo"
)

// SinkNode writes records to an output topic. Produces are asynchronous;
// Flush waits for all in-flight produces and surfaces the first failure.
type SinkNode[K, V any] struct {
	keySerializer   serde.Serializer[K]
	valueSerializer serde.Serializer[V]

	client *kgo.Client
	topic  string

	mu          sync.Mutex
	futuresWg   sync.WaitGroup
	produceErrs []error
}

func newSinkNode[K, V any](client *kgo.Client, topic string, keySerializer serde.Serializer[K], valueSerializer serde.Serializer[V]) *SinkNode[K, V] {
	return &SinkNode[K, V]{
		client:          client,
		topic:           topic,
		keySerializer:   keySerializer,
		valueSerializer: valueSerializer,
	}
}

func (s *SinkNode[K, V]) Process(ctx context.Context, k K, v V) error {
	key, err := s.keySerializer(k)
	if err != nil {
		return fmt.Errorf("sink node: failed to serialize key: %w", err)
	}
	value, err := s.valueSerializer(v)
	if err != nil {
		return fmt.Errorf("sink node: failed to serialize value: %w", err)
	}

	s.futuresWg.Add(1)
	s.client.Produce(ctx, &kgo.Record{
		Key:   key,
		Value: value,
		Topic: s.topic,
	}, func(r *kgo.Record, err error) {
		if err != nil {
			s.mu.Lock()
			s.produceErrs = append(s.produceErrs, err)
			s.mu.Unlock()
		}
		s.futuresWg.Done()
	})

	return nil
}

func (s *SinkNode[K, V]) Flush(ctx context.Context) error {
	s.futuresWg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	errs := s.produceErrs
	s.produceErrs = nil
	if len(errs) > 0 {
		return fmt.Errorf("sink node: failed to produce: %w", errs[0])
	}
	return nil
}

var _ InputProcessor[any, any] = (*SinkNode[any, any])(nil)
var _ Flusher = (*SinkNode[any, any])(nil)
