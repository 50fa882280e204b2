package streamhaus

import (
	"fmt"
	"sync/atomic"

	"github.com/streamhaus/streamhaus/serde"
	"github.com/streamhaus/streamhaus/stores"
)

// StoreBuilder creates one state store instance per task partition.
type StoreBuilder func(name string, partition int32) (stores.StateStore, error)

// TopologyBuilder assembles a processing DAG node by node. Registration is
// fail-fast: structural errors like duplicate names or unknown parents are
// reported immediately instead of at Build.
//
// A builder is not safe for concurrent use. Build the topology once, then
// share the resulting Topology freely.
type TopologyBuilder struct {
	nodes         map[string]*graphNode
	sources       map[string]string
	storeBuilders map[string]StoreBuilder

	config *Config

	nameIndex atomic.Int64
}

func NewTopologyBuilder() *TopologyBuilder {
	return NewTopologyBuilderWithConfig(NewConfig())
}

func NewTopologyBuilderWithConfig(config *Config) *TopologyBuilder {
	return &TopologyBuilder{
		nodes:         map[string]*graphNode{},
		sources:       map[string]string{},
		storeBuilders: map[string]StoreBuilder{},
		config:        config,
	}
}

// NewName returns prefix followed by a ten digit zero padded counter value.
// Successive calls yield distinct, monotonically increasing names, also
// across prefixes; the counter is shared.
func (tb *TopologyBuilder) NewName(prefix string) string {
	return fmt.Sprintf("%s%010d", prefix, tb.nameIndex.Add(1)-1)
}

// Build validates the assembled graph and freezes it into a Topology.
func (tb *TopologyBuilder) Build() (*Topology, error) {
	topology := &Topology{
		nodes:         tb.nodes,
		sources:       tb.sources,
		storeBuilders: tb.storeBuilders,
		config:        tb.config,
	}

	if err := topology.validate(); err != nil {
		return nil, err
	}

	order, err := topology.topologicalSort()
	if err != nil {
		return nil, err
	}
	topology.nodeOrder = order
	topology.partitionGroups = topology.computePartitionGroups()

	return topology, nil
}

func (tb *TopologyBuilder) MustBuild() *Topology {
	topology, err := tb.Build()
	if err != nil {
		panic(err)
	}
	return topology
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// RegisterSource adds a node consuming one or more topics. Each topic can
// feed at most one source node.
func RegisterSource[K, V any](tb *TopologyBuilder, name string, topics []string, keyDeserializer serde.Deserializer[K], valueDeserializer serde.Deserializer[V]) error {
	if _, found := tb.nodes[name]; found {
		return fmt.Errorf("%w: %s", ErrNodeAlreadyExists, name)
	}
	if len(topics) == 0 {
		return fmt.Errorf("%w: source %s", ErrNoTopics, name)
	}
	for _, topic := range topics {
		if registered, found := tb.sources[topic]; found {
			return fmt.Errorf("%w: topic %s is consumed by %s", ErrTopicAlreadyRegistered, topic, registered)
		}
	}

	tb.nodes[name] = &graphNode{
		name:   name,
		kind:   kindSource,
		topics: topics,
		build: func(bc *buildContext) (any, error) {
			return newSourceNode(keyDeserializer, valueDeserializer), nil
		},
		wire: func(parent any, childName string, child any) error {
			parentNode, ok := parent.(*SourceNode[K, V])
			if !ok {
				return wireTypeError(name, childName)
			}
			childNode, ok := child.(InputProcessor[K, V])
			if !ok {
				return wireTypeError(name, childName)
			}
			parentNode.downstream[childName] = childNode
			return nil
		},
	}
	for _, topic := range topics {
		tb.sources[topic] = name
	}
	return nil
}

func MustRegisterSource[K, V any](tb *TopologyBuilder, name string, topics []string, keyDeserializer serde.Deserializer[K], valueDeserializer serde.Deserializer[V]) {
	must(RegisterSource(tb, name, topics, keyDeserializer, valueDeserializer))
}

// RegisterProcessor adds a processing node downstream of one or more
// existing parents.
func RegisterProcessor[Kin, Vin, Kout, Vout any](tb *TopologyBuilder, supplier ProcessorSupplier[Kin, Vin, Kout, Vout], name string, parents ...string) error {
	if _, found := tb.nodes[name]; found {
		return fmt.Errorf("%w: %s", ErrNodeAlreadyExists, name)
	}
	if len(parents) == 0 {
		return fmt.Errorf("%w: processor %s", ErrNoParents, name)
	}
	for _, parent := range parents {
		if err := validParent(tb, parent); err != nil {
			return err
		}
	}

	node := &graphNode{
		name:    name,
		kind:    kindProcessor,
		parents: parents,
		build: func(bc *buildContext) (any, error) {
			p := newProcessorNode(name, supplier)
			p.config = bc.config
			p.stores = map[string]stores.StateStore{}
			for _, storeName := range tb.nodes[name].storeNames {
				p.stores[storeName] = bc.stores[storeName]
			}
			return p, nil
		},
		wire: func(parent any, childName string, child any) error {
			parentNode, ok := parent.(*processorNode[Kin, Vin, Kout, Vout])
			if !ok {
				return wireTypeError(name, childName)
			}
			childNode, ok := child.(InputProcessor[Kout, Vout])
			if !ok {
				return wireTypeError(name, childName)
			}
			parentNode.outputs[childName] = childNode
			return nil
		},
	}
	tb.nodes[name] = node

	for _, parent := range parents {
		tb.nodes[parent].children = append(tb.nodes[parent].children, name)
	}
	return nil
}

func MustRegisterProcessor[Kin, Vin, Kout, Vout any](tb *TopologyBuilder, supplier ProcessorSupplier[Kin, Vin, Kout, Vout], name string, parents ...string) {
	must(RegisterProcessor(tb, supplier, name, parents...))
}

// RegisterSink adds a terminal node producing to a topic.
func RegisterSink[K, V any](tb *TopologyBuilder, name, topic string, keySerializer serde.Serializer[K], valueSerializer serde.Serializer[V], parents ...string) error {
	if _, found := tb.nodes[name]; found {
		return fmt.Errorf("%w: %s", ErrNodeAlreadyExists, name)
	}
	if len(parents) == 0 {
		return fmt.Errorf("%w: sink %s", ErrNoParents, name)
	}
	for _, parent := range parents {
		if err := validParent(tb, parent); err != nil {
			return err
		}
	}

	tb.nodes[name] = &graphNode{
		name:    name,
		kind:    kindSink,
		parents: parents,
		build: func(bc *buildContext) (any, error) {
			return newSinkNode(bc.client, topic, keySerializer, valueSerializer), nil
		},
		wire: func(parent any, childName string, child any) error {
			return wireTypeError(name, childName)
		},
	}
	for _, parent := range parents {
		tb.nodes[parent].children = append(tb.nodes[parent].children, name)
	}
	return nil
}

func MustRegisterSink[K, V any](tb *TopologyBuilder, name, topic string, keySerializer serde.Serializer[K], valueSerializer serde.Serializer[V], parents ...string) {
	must(RegisterSink(tb, name, topic, keySerializer, valueSerializer, parents...))
}

// RegisterStore defines a state store and optionally associates it with
// already-registered processors. Stores are materialized per partition when
// a task is created and are only visible to processors they were connected
// to, either here or via ConnectStore.
func RegisterStore(tb *TopologyBuilder, name string, builder StoreBuilder, processorNames ...string) error {
	if _, found := tb.storeBuilders[name]; found {
		return fmt.Errorf("%w: %s", ErrStoreAlreadyExists, name)
	}
	for _, processorName := range processorNames {
		node, found := tb.nodes[processorName]
		if !found || node.kind != kindProcessor {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, processorName)
		}
	}
	tb.storeBuilders[name] = builder
	for _, processorName := range processorNames {
		tb.nodes[processorName].storeNames = append(tb.nodes[processorName].storeNames, name)
	}
	return nil
}

func MustRegisterStore(tb *TopologyBuilder, name string, builder StoreBuilder, processorNames ...string) {
	must(RegisterStore(tb, name, builder, processorNames...))
}

// ConnectStore makes registered stores available to a processor's context.
func ConnectStore(tb *TopologyBuilder, processorName string, storeNames ...string) error {
	node, found := tb.nodes[processorName]
	if !found || node.kind != kindProcessor {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, processorName)
	}
	for _, storeName := range storeNames {
		if _, found := tb.storeBuilders[storeName]; !found {
			return fmt.Errorf("%w: %s", ErrStoreNotFound, storeName)
		}
	}
	node.storeNames = append(node.storeNames, storeNames...)
	return nil
}

func MustConnectStore(tb *TopologyBuilder, processorName string, storeNames ...string) {
	must(ConnectStore(tb, processorName, storeNames...))
}

func validParent(tb *TopologyBuilder, parent string) error {
	node, found := tb.nodes[parent]
	if !found {
		return fmt.Errorf("%w: parent %s", ErrNodeNotFound, parent)
	}
	if node.kind == kindSink {
		return fmt.Errorf("%w: %s is a sink", ErrInvalidParent, parent)
	}
	return nil
}

func wireTypeError(parent, child string) error {
	return fmt.Errorf("cannot connect %s to %s: key/value types do not match", parent, child)
}
