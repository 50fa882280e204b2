package streamhaus

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func newTestNode(t *testing.T) *processorNode[string, string, string, string] {
	t.Helper()
	node := newProcessorNode[string, string, string, string]("node", newForwardingProcessor)
	node.config = NewConfig()
	return node
}

func TestProcessorNodeLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("process before init fails", func(t *testing.T) {
		node := newTestNode(t)
		assert.IsError(t, node.Process(ctx, "k", "v"), ErrNotInitialized)
	})

	t.Run("init then process succeeds", func(t *testing.T) {
		node := newTestNode(t)
		assert.NoError(t, node.init())
		assert.NoError(t, node.Process(ctx, "k", "v"))
	})

	t.Run("double init fails", func(t *testing.T) {
		node := newTestNode(t)
		assert.NoError(t, node.init())
		assert.IsError(t, node.init(), ErrAlreadyInitialized)
	})

	t.Run("process after close fails", func(t *testing.T) {
		node := newTestNode(t)
		assert.NoError(t, node.init())
		assert.NoError(t, node.close())
		assert.IsError(t, node.Process(ctx, "k", "v"), ErrNodeClosed)
	})

	t.Run("init after close fails", func(t *testing.T) {
		node := newTestNode(t)
		assert.NoError(t, node.init())
		assert.NoError(t, node.close())
		assert.IsError(t, node.init(), ErrNodeClosed)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		node := newTestNode(t)
		assert.NoError(t, node.init())
		assert.NoError(t, node.close())
		assert.NoError(t, node.close())
	})
}

type punctuatingProcessor struct {
	forwardingProcessor
	punctuations []time.Time
}

func (p *punctuatingProcessor) Punctuate(_ context.Context, now time.Time) error {
	p.punctuations = append(p.punctuations, now)
	return nil
}

func TestProcessorNodePunctuate(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1000)

	t.Run("punctuator is invoked", func(t *testing.T) {
		p := &punctuatingProcessor{}
		node := newProcessorNode[string, string, string, string]("node", func() Processor[string, string, string, string] { return p })
		node.config = NewConfig()
		assert.NoError(t, node.init())
		assert.NoError(t, node.punctuate(ctx, now))
		assert.Equal(t, []time.Time{now}, p.punctuations)
	})

	t.Run("plain processors no-op", func(t *testing.T) {
		node := newTestNode(t)
		assert.NoError(t, node.init())
		assert.NoError(t, node.punctuate(ctx, now))
	})

	t.Run("punctuate before init fails", func(t *testing.T) {
		node := newTestNode(t)
		assert.IsError(t, node.punctuate(ctx, now), ErrNotInitialized)
	})
}

func TestProcessorContextForwardTo(t *testing.T) {
	capture := &captureProcessor[string, string]{}
	pctx := &internalProcessorContext[string, string]{
		nodeName: "parent",
		outputs:  map[string]InputProcessor[string, string]{"child": capture},
		config:   NewConfig(),
	}

	ctx := context.Background()
	assert.NoError(t, pctx.ForwardTo(ctx, "child", "k", "v"))
	assert.Equal(t, 1, len(capture.records))

	assert.IsError(t, pctx.ForwardTo(ctx, "nope", "k", "v"), ErrNodeNotFound)
}

func TestProcessorContextGetStore(t *testing.T) {
	pctx := &internalProcessorContext[string, string]{
		nodeName: "parent",
		config:   NewConfig(),
	}
	_, err := pctx.GetStore("nope")
	assert.IsError(t, err, ErrStoreNotFound)
}
