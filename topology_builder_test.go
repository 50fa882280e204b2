package streamhaus

import (
	"context"
	"fmt"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/streamhaus/streamhaus/serde"
	"github.com/streamhaus/streamhaus/stores"
)

type forwardingProcessor struct {
	pctx ProcessorContext[string, string]
}

func (p *forwardingProcessor) Init(pctx ProcessorContext[string, string]) error {
	p.pctx = pctx
	return nil
}

func (p *forwardingProcessor) Process(ctx context.Context, k, v string) error {
	return p.pctx.Forward(ctx, k, v)
}

func (p *forwardingProcessor) Close() error {
	return nil
}

func newForwardingProcessor() Processor[string, string, string, string] {
	return &forwardingProcessor{}
}

func TestNewName(t *testing.T) {
	tb := NewTopologyBuilder()

	t.Run("zero padded to ten digits", func(t *testing.T) {
		assert.Equal(t, "PREFIX-0000000000", tb.NewName("PREFIX-"))
	})

	t.Run("counter is shared across prefixes", func(t *testing.T) {
		assert.Equal(t, "OTHER-0000000001", tb.NewName("OTHER-"))
		assert.Equal(t, "PREFIX-0000000002", tb.NewName("PREFIX-"))
	})

	t.Run("never repeats", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 1000; i++ {
			name := tb.NewName("N-")
			assert.False(t, seen[name])
			seen[name] = true
		}
	})
}

func TestRegisterSource(t *testing.T) {
	t.Run("valid registration", func(t *testing.T) {
		tb := NewTopologyBuilder()
		assert.NoError(t, RegisterSource(tb, "source", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer))
	})

	t.Run("duplicate name fails", func(t *testing.T) {
		tb := NewTopologyBuilder()
		assert.NoError(t, RegisterSource(tb, "source", []string{"topic-a"}, serde.StringDeserializer, serde.StringDeserializer))
		err := RegisterSource(tb, "source", []string{"topic-b"}, serde.StringDeserializer, serde.StringDeserializer)
		assert.IsError(t, err, ErrNodeAlreadyExists)
	})

	t.Run("topic can only feed one source", func(t *testing.T) {
		tb := NewTopologyBuilder()
		assert.NoError(t, RegisterSource(tb, "a", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer))
		err := RegisterSource(tb, "b", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer)
		assert.IsError(t, err, ErrTopicAlreadyRegistered)
	})

	t.Run("empty topic list fails", func(t *testing.T) {
		tb := NewTopologyBuilder()
		err := RegisterSource(tb, "source", nil, serde.StringDeserializer, serde.StringDeserializer)
		assert.IsError(t, err, ErrNoTopics)
	})

	t.Run("failed registration leaves the graph untouched", func(t *testing.T) {
		tb := NewTopologyBuilder()
		assert.NoError(t, RegisterSource(tb, "source", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer))
		assert.Error(t, RegisterSource(tb, "other", []string{"extra", "topic"}, serde.StringDeserializer, serde.StringDeserializer))

		assert.Equal(t, 1, len(tb.nodes))
		assert.Equal(t, []string{"topic"}, tb.MustBuild().GetTopics())
	})
}

func TestRegisterProcessor(t *testing.T) {
	newBuilder := func(t *testing.T) *TopologyBuilder {
		t.Helper()
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "source", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer)
		return tb
	}

	t.Run("valid registration", func(t *testing.T) {
		tb := newBuilder(t)
		assert.NoError(t, RegisterProcessor(tb, newForwardingProcessor, "processor", "source"))
	})

	t.Run("duplicate name fails", func(t *testing.T) {
		tb := newBuilder(t)
		assert.NoError(t, RegisterProcessor(tb, newForwardingProcessor, "processor", "source"))
		err := RegisterProcessor(tb, newForwardingProcessor, "processor", "source")
		assert.IsError(t, err, ErrNodeAlreadyExists)
	})

	t.Run("unknown parent fails", func(t *testing.T) {
		tb := newBuilder(t)
		err := RegisterProcessor(tb, newForwardingProcessor, "processor", "nope")
		assert.IsError(t, err, ErrNodeNotFound)
	})

	t.Run("missing parents fail", func(t *testing.T) {
		tb := newBuilder(t)
		err := RegisterProcessor(tb, newForwardingProcessor, "processor")
		assert.IsError(t, err, ErrNoParents)
	})

	t.Run("sink cannot be a parent", func(t *testing.T) {
		tb := newBuilder(t)
		MustRegisterSink(tb, "sink", "out", serde.StringSerializer, serde.StringSerializer, "source")
		err := RegisterProcessor(tb, newForwardingProcessor, "processor", "sink")
		assert.IsError(t, err, ErrInvalidParent)
	})

	t.Run("multiple parents form a union", func(t *testing.T) {
		tb := newBuilder(t)
		MustRegisterSource(tb, "source2", []string{"topic2"}, serde.StringDeserializer, serde.StringDeserializer)
		assert.NoError(t, RegisterProcessor(tb, newForwardingProcessor, "processor", "source", "source2"))

		topology := tb.MustBuild()
		assert.Equal(t, []string{"processor"}, topology.nodes["source"].children)
		assert.Equal(t, []string{"processor"}, topology.nodes["source2"].children)
	})
}

func TestRegisterStore(t *testing.T) {
	builder := stores.KeyValueStoreBuilder(stores.MemoryBackendBuilder, serde.String, serde.String)

	t.Run("duplicate name fails", func(t *testing.T) {
		tb := NewTopologyBuilder()
		assert.NoError(t, RegisterStore(tb, "store", builder))
		assert.IsError(t, RegisterStore(tb, "store", builder), ErrStoreAlreadyExists)
	})

	t.Run("unknown processor fails", func(t *testing.T) {
		tb := NewTopologyBuilder()
		err := RegisterStore(tb, "store", builder, "nope")
		assert.IsError(t, err, ErrNodeNotFound)
	})

	t.Run("connect store to processor", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "source", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterProcessor(tb, newForwardingProcessor, "processor", "source")
		assert.NoError(t, RegisterStore(tb, "store", builder, "processor"))
		assert.Equal(t, []string{"store"}, tb.nodes["processor"].storeNames)
	})

	t.Run("connect store to source fails", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "source", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer)
		assert.IsError(t, ConnectStore(tb, "source", "store"), ErrNodeNotFound)
	})

	t.Run("connect unknown store fails", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "source", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterProcessor(tb, newForwardingProcessor, "processor", "source")
		assert.IsError(t, ConnectStore(tb, "processor", "nope"), ErrStoreNotFound)
	})
}

func TestBuild(t *testing.T) {
	t.Run("empty builder fails", func(t *testing.T) {
		_, err := NewTopologyBuilder().Build()
		assert.IsError(t, err, ErrNoTopics)
	})

	t.Run("topics are sorted", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "b", []string{"zulu"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterSource(tb, "a", []string{"alpha"}, serde.StringDeserializer, serde.StringDeserializer)
		assert.Equal(t, []string{"alpha", "zulu"}, tb.MustBuild().GetTopics())
	})

	t.Run("node order is topological and deterministic", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "source", []string{"topic"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterProcessor(tb, newForwardingProcessor, "p1", "source")
		MustRegisterProcessor(tb, newForwardingProcessor, "p2", "p1")
		MustRegisterSink(tb, "sink", "out", serde.StringSerializer, serde.StringSerializer, "p2")

		topology := tb.MustBuild()
		assert.Equal(t, []string{"source", "p1", "p2", "sink"}, topology.nodeOrder)
	})

	t.Run("partition groups merge on shared processors", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "s1", []string{"topic-a"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterSource(tb, "s2", []string{"topic-b"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterProcessor(tb, newForwardingProcessor, "joined", "s1", "s2")

		topology := tb.MustBuild()
		pgs := topology.getPartitionGroups()
		assert.Equal(t, 1, len(pgs))
		assert.Equal(t, []string{"topic-a", "topic-b"}, pgs[0].sourceTopics)
		assert.Equal(t, []string{"joined"}, pgs[0].processorNames)
	})

	t.Run("independent subgraphs stay separate", func(t *testing.T) {
		tb := NewTopologyBuilder()
		MustRegisterSource(tb, "s1", []string{"topic-a"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterSource(tb, "s2", []string{"topic-b"}, serde.StringDeserializer, serde.StringDeserializer)
		MustRegisterProcessor(tb, newForwardingProcessor, "p1", "s1")
		MustRegisterProcessor(tb, newForwardingProcessor, "p2", "s2")

		assert.Equal(t, 2, len(tb.MustBuild().getPartitionGroups()))
	})

	t.Run("generated names compose with registration", func(t *testing.T) {
		tb := NewTopologyBuilder()
		for i := 0; i < 3; i++ {
			name := tb.NewName("SOURCE-")
			MustRegisterSource(tb, name, []string{fmt.Sprintf("topic-%d", i)}, serde.StringDeserializer, serde.StringDeserializer)
		}
		assert.Equal(t, 3, len(tb.MustBuild().nodes))
	})
}
