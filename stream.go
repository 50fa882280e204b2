package streamhaus

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/streamhaus/streamhaus/serde"
	"github.com/streamhaus/streamhaus/stores"
)

// Node name prefixes used by the declarative layer. Names are generated by
// the underlying TopologyBuilder, so they are unique across all prefixes.
const (
	sourcePrefix      = "STREAM-SOURCE-"
	tableSourcePrefix = "TABLE-SOURCE-"
	tableStorePrefix  = "TABLE-STORE-"
	selectKeyPrefix   = "STREAM-KEY-SELECT-"
	mergePrefix       = "STREAM-MERGE-"
	processorPrefix   = "STREAM-PROCESSOR-"
	printerPrefix     = "STREAM-PRINTER-"
	sinkPrefix        = "STREAM-SINK-"
)

// StreamsBuilder is the declarative layer on top of TopologyBuilder. It only
// composes builder calls and generated names; all structural invariants are
// enforced by the builder itself.
type StreamsBuilder struct {
	tb *TopologyBuilder
}

func NewStreamsBuilder() *StreamsBuilder {
	return &StreamsBuilder{tb: NewTopologyBuilder()}
}

func NewStreamsBuilderWithConfig(config *Config) *StreamsBuilder {
	return &StreamsBuilder{tb: NewTopologyBuilderWithConfig(config)}
}

// TopologyBuilder exposes the underlying builder for mixing declarative and
// manual node registration.
func (sb *StreamsBuilder) TopologyBuilder() *TopologyBuilder {
	return sb.tb
}

func (sb *StreamsBuilder) Build() (*Topology, error) {
	return sb.tb.Build()
}

func (sb *StreamsBuilder) MustBuild() *Topology {
	return sb.tb.MustBuild()
}

// Stream is a handle onto a set of upstream nodes in the graph under
// construction. Operations derive new handles; the handle itself holds no
// runtime state.
type Stream[K, V any] struct {
	builder *StreamsBuilder
	nodes   []string
}

// Nodes returns the node names this handle reads from.
func (s *Stream[K, V]) Nodes() []string {
	return s.nodes
}

// NewStream registers a source for the given topics and returns a handle to
// it.
func NewStream[K, V any](sb *StreamsBuilder, keySerde serde.Serde[K], valueSerde serde.Serde[V], topics ...string) (*Stream[K, V], error) {
	name := sb.tb.NewName(sourcePrefix)
	if err := RegisterSource(sb.tb, name, topics, keySerde.Deserializer, valueSerde.Deserializer); err != nil {
		return nil, err
	}
	return &Stream[K, V]{builder: sb, nodes: []string{name}}, nil
}

// NewByteStream is NewStream with the process-wide default serdes, for
// callers that want to defer deserialization to downstream processors.
func NewByteStream(sb *StreamsBuilder, topics ...string) (*Stream[[]byte, []byte], error) {
	config := sb.tb.config
	return NewStream(sb, config.DefaultKeySerde, config.DefaultValueSerde, topics...)
}

// SelectKey derives a stream re-keyed by mapper. Values and record order
// pass through unchanged.
func SelectKey[K, V, KR any](s *Stream[K, V], mapper func(K, V) (KR, error)) (*Stream[KR, V], error) {
	name := s.builder.tb.NewName(selectKeyPrefix)
	supplier := func() Processor[K, V, KR, V] {
		return &selectKeyProcessor[K, V, KR]{mapper: mapper}
	}
	if err := RegisterProcessor(s.builder.tb, supplier, name, s.nodes...); err != nil {
		return nil, err
	}
	return &Stream[KR, V]{builder: s.builder, nodes: []string{name}}, nil
}

// Merge combines multiple streams into one whose upstream set is the union
// of the inputs. No ordering is guaranteed between records from different
// inputs.
func Merge[K, V any](streams ...*Stream[K, V]) (*Stream[K, V], error) {
	if len(streams) == 0 {
		return nil, ErrNoParents
	}
	builder := streams[0].builder
	var parents []string
	for _, stream := range streams {
		if stream.builder != builder {
			return nil, fmt.Errorf("cannot merge streams from different builders")
		}
		parents = append(parents, stream.nodes...)
	}

	name := builder.tb.NewName(mergePrefix)
	supplier := func() Processor[K, V, K, V] {
		return &passthroughProcessor[K, V]{}
	}
	if err := RegisterProcessor(builder.tb, supplier, name, parents...); err != nil {
		return nil, err
	}
	return &Stream[K, V]{builder: builder, nodes: []string{name}}, nil
}

// Process attaches a custom processor and returns a handle to its output.
func Process[K, V, KR, VR any](s *Stream[K, V], supplier ProcessorSupplier[K, V, KR, VR], storeNames ...string) (*Stream[KR, VR], error) {
	name := s.builder.tb.NewName(processorPrefix)
	if err := RegisterProcessor(s.builder.tb, supplier, name, s.nodes...); err != nil {
		return nil, err
	}
	if len(storeNames) > 0 {
		if err := ConnectStore(s.builder.tb, name, storeNames...); err != nil {
			return nil, err
		}
	}
	return &Stream[KR, VR]{builder: s.builder, nodes: []string{name}}, nil
}

// Print attaches a debug printer writing to stdout. The stream passes
// through, so further operations can be chained.
func Print[K, V any](s *Stream[K, V]) (*Stream[K, V], error) {
	return PrintTo(s, os.Stdout, false)
}

// PrintTo attaches a debug printer writing to w. owned declares whether the
// printer exclusively owns w; an owned writer is closed when the node
// closes, a borrowed one is only flushed.
func PrintTo[K, V any](s *Stream[K, V], w io.Writer, owned bool) (*Stream[K, V], error) {
	name := s.builder.tb.NewName(printerPrefix)
	if err := RegisterProcessor(s.builder.tb, NewPrintProcessor[K, V](w, owned), name, s.nodes...); err != nil {
		return nil, err
	}
	return &Stream[K, V]{builder: s.builder, nodes: []string{name}}, nil
}

// To terminates the stream into a sink producing to topic.
func To[K, V any](s *Stream[K, V], topic string, keySerializer serde.Serializer[K], valueSerializer serde.Serializer[V]) error {
	name := s.builder.tb.NewName(sinkPrefix)
	return RegisterSink(s.builder.tb, name, topic, keySerializer, valueSerializer, s.nodes...)
}

// Table is a handle onto a changelog topic materialized into a key-value
// store: the store always holds the latest value per key.
type Table[K, V any] struct {
	builder   *StreamsBuilder
	nodes     []string
	storeName string
}

// StoreName returns the name of the backing key-value store.
func (t *Table[K, V]) StoreName() string {
	return t.storeName
}

// ToStream returns the table's change stream for further processing.
func (t *Table[K, V]) ToStream() *Stream[K, V] {
	return &Stream[K, V]{builder: t.builder, nodes: t.nodes}
}

// NewTable registers a source plus a materializing processor backed by a
// key-value store on the given backend.
func NewTable[K, V any](sb *StreamsBuilder, keySerde serde.Serde[K], valueSerde serde.Serde[V], topic string, backendBuilder stores.BackendBuilder) (*Table[K, V], error) {
	sourceName := sb.tb.NewName(sourcePrefix)
	if err := RegisterSource(sb.tb, sourceName, []string{topic}, keySerde.Deserializer, valueSerde.Deserializer); err != nil {
		return nil, err
	}

	storeName := sb.tb.NewName(tableStorePrefix)
	if err := RegisterStore(sb.tb, storeName, stores.KeyValueStoreBuilder(backendBuilder, keySerde, valueSerde)); err != nil {
		return nil, err
	}

	processorName := sb.tb.NewName(tableSourcePrefix)
	supplier := func() Processor[K, V, K, V] {
		return &tableSourceProcessor[K, V]{storeName: storeName}
	}
	if err := RegisterProcessor(sb.tb, supplier, processorName, sourceName); err != nil {
		return nil, err
	}
	if err := ConnectStore(sb.tb, processorName, storeName); err != nil {
		return nil, err
	}

	return &Table[K, V]{builder: sb, nodes: []string{processorName}, storeName: storeName}, nil
}

type selectKeyProcessor[K, V, KR any] struct {
	mapper func(K, V) (KR, error)
	pctx   ProcessorContext[KR, V]
}

func (p *selectKeyProcessor[K, V, KR]) Init(pctx ProcessorContext[KR, V]) error {
	p.pctx = pctx
	return nil
}

func (p *selectKeyProcessor[K, V, KR]) Process(ctx context.Context, k K, v V) error {
	newKey, err := p.mapper(k, v)
	if err != nil {
		return err
	}
	return p.pctx.Forward(ctx, newKey, v)
}

func (p *selectKeyProcessor[K, V, KR]) Close() error {
	return nil
}

type passthroughProcessor[K, V any] struct {
	pctx ProcessorContext[K, V]
}

func (p *passthroughProcessor[K, V]) Init(pctx ProcessorContext[K, V]) error {
	p.pctx = pctx
	return nil
}

func (p *passthroughProcessor[K, V]) Process(ctx context.Context, k K, v V) error {
	return p.pctx.Forward(ctx, k, v)
}

func (p *passthroughProcessor[K, V]) Close() error {
	return nil
}

// tableSourceProcessor upserts every record into its store, then forwards
// it downstream as a change event.
type tableSourceProcessor[K, V any] struct {
	storeName string
	store     *stores.KeyValueStore[K, V]
	pctx      ProcessorContext[K, V]
}

func (p *tableSourceProcessor[K, V]) Init(pctx ProcessorContext[K, V]) error {
	p.pctx = pctx
	st, err := pctx.GetStore(p.storeName)
	if err != nil {
		return err
	}
	store, ok := st.(*stores.KeyValueStore[K, V])
	if !ok {
		return fmt.Errorf("store %s is not a key-value store of the expected types", p.storeName)
	}
	p.store = store
	return nil
}

func (p *tableSourceProcessor[K, V]) Process(ctx context.Context, k K, v V) error {
	if err := p.store.Set(k, v); err != nil {
		return err
	}
	return p.pctx.Forward(ctx, k, v)
}

func (p *tableSourceProcessor[K, V]) Close() error {
	return nil
}
