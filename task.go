package streamhaus

import (
	"context"
	"fmt"
	"time"

	"github.com/streamhaus/streamhaus/stores"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
)

// Task is one partition's instantiation of a topology. Records are routed
// to the source node of their topic and flow through the wired graph
// synchronously; offsets become committable only after processing returned
// without error.
type Task struct {
	topics    []string
	partition int32

	// Key = topic.
	rootNodes map[string]RawRecordProcessor

	stores map[string]stores.StateStore
	nodes  map[string]any
	sinks  []Flusher

	// Key = topic.
	committableOffsets map[string]kgo.EpochOffset
}

func newTask(topics []string, partition int32, rootNodes map[string]RawRecordProcessor, builtStores map[string]stores.StateStore, nodes map[string]any, sinks []Flusher) *Task {
	return &Task{
		topics:             topics,
		partition:          partition,
		rootNodes:          rootNodes,
		stores:             builtStores,
		nodes:              nodes,
		sinks:              sinks,
		committableOffsets: map[string]kgo.EpochOffset{},
	}
}

func (t *Task) Process(ctx context.Context, records ...*kgo.Record) error {
	for _, record := range records {
		root, ok := t.rootNodes[record.Topic]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTopic, record.Topic)
		}
		if err := root.Process(ctx, record); err != nil {
			return fmt.Errorf("failed to process record: %w", err)
		}
		t.committableOffsets[record.Topic] = kgo.EpochOffset{Epoch: record.LeaderEpoch, Offset: record.Offset + 1}
	}
	return nil
}

// Punctuate invokes the periodic callback of every processor that opted in.
func (t *Task) Punctuate(ctx context.Context, now time.Time) error {
	var err error
	for _, name := range sortedKeys(t.nodes) {
		if p, ok := t.nodes[name].(punctuable); ok {
			err = multierr.Append(err, p.punctuate(ctx, now))
		}
	}
	return err
}

// Flush drains buffered state and pending produces so the committable
// offsets are safe to commit.
func (t *Task) Flush(ctx context.Context) error {
	var err error
	for _, store := range t.stores {
		err = multierr.Append(err, store.Flush(ctx))
	}
	for _, sink := range t.sinks {
		err = multierr.Append(err, sink.Flush(ctx))
	}
	return err
}

func (t *Task) Close() error {
	var err error
	for _, node := range t.nodes {
		if c, ok := node.(closeable); ok {
			err = multierr.Append(err, c.close())
		}
	}
	for _, store := range t.stores {
		err = multierr.Append(err, store.Close())
	}
	return err
}

func (t *Task) GetOffsetsToCommit() map[string]kgo.EpochOffset {
	return t.committableOffsets
}

func (t *Task) ClearOffsets() {
	for k := range t.committableOffsets {
		delete(t.committableOffsets, k)
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("%v-%d", t.topics, t.partition)
}
