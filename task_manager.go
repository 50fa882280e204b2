package streamhaus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/multierr"
)

var ErrTaskNotFound = errors.New("streamhaus: task not found")

// TaskManager owns the tasks of one worker. Tasks are created and closed as
// the consumer group assigns and revokes partitions.
type TaskManager struct {
	tasks []*Task

	client   *kgo.Client
	log      logr.Logger
	topology *Topology
	pgs      []*PartitionGroup
}

type pgPartitions struct {
	partitionGroup *PartitionGroup
	partitions     []int32
}

func (t *TaskManager) matchingPGs(assignedOrRevoked map[string][]int32) ([]*PartitionGroup, error) {
	var matching []*PartitionGroup
	for _, pg := range t.pgs {
		found := 0
		for _, topic := range pg.sourceTopics {
			if _, ok := assignedOrRevoked[topic]; ok {
				found++
			}
		}
		if found == 0 {
			continue
		}
		if found < len(pg.sourceTopics) {
			return nil, fmt.Errorf("source topics missing for partition group %v", pg.sourceTopics)
		}
		matching = append(matching, pg)
	}
	return matching, nil
}

func (t *TaskManager) findPGs(assignedOrRevoked map[string][]int32) ([]*pgPartitions, error) {
	matching, err := t.matchingPGs(assignedOrRevoked)
	if err != nil {
		return nil, err
	}

	for _, partitions := range assignedOrRevoked {
		slices.Sort(partitions)
	}

	var res []*pgPartitions
	for _, pg := range matching {
		var partitions []int32
		for _, topic := range pg.sourceTopics {
			assigned := assignedOrRevoked[topic]
			if partitions == nil {
				partitions = assigned
				continue
			}
			if !slices.Equal(partitions, assigned) {
				return nil, fmt.Errorf("partitions not co-assigned: got %v and %v", partitions, assigned)
			}
		}
		res = append(res, &pgPartitions{partitionGroup: pg, partitions: partitions})
	}
	return res, nil
}

// Assigned creates one task per newly assigned partition of each matching
// partition group.
func (t *TaskManager) Assigned(assigned map[string][]int32) error {
	matching, err := t.findPGs(assigned)
	if err != nil {
		return err
	}

	for _, pg := range matching {
		for _, partition := range pg.partitions {
			task, err := t.topology.CreateTask(pg.partitionGroup.sourceTopics, partition, t.client)
			if err != nil {
				return fmt.Errorf("failed to create task for partition %d: %w", partition, err)
			}
			t.log.Info("created task", "task", task.String())
			t.tasks = append(t.tasks, task)
		}
	}
	return nil
}

// Revoked flushes, commits and closes the tasks of revoked partitions.
func (t *TaskManager) Revoked(ctx context.Context, revoked map[string][]int32) error {
	matching, err := t.findPGs(revoked)
	if err != nil {
		return err
	}

	for _, pg := range matching {
		for _, partition := range pg.partitions {
			found := false
			for i, task := range t.tasks {
				if !slices.Equal(task.topics, pg.partitionGroup.sourceTopics) || task.partition != partition {
					continue
				}
				found = true
				if err := t.commitTask(ctx, task); err != nil {
					return err
				}
				if err := task.Close(); err != nil {
					return err
				}
				t.tasks = slices.Delete(t.tasks, i, i+1)
				break
			}
			if !found {
				return ErrTaskNotFound
			}
		}
	}
	return nil
}

// Punctuate runs the periodic callbacks of all tasks.
func (t *TaskManager) Punctuate(ctx context.Context, now time.Time) error {
	var err error
	for _, task := range t.tasks {
		err = multierr.Append(err, task.Punctuate(ctx, now))
	}
	return err
}

// Commit flushes all tasks and commits their processed offsets.
func (t *TaskManager) Commit(ctx context.Context) error {
	var err error
	for _, task := range t.tasks {
		err = multierr.Append(err, t.commitTask(ctx, task))
	}
	return err
}

func (t *TaskManager) commitTask(ctx context.Context, task *Task) error {
	if err := task.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush task %s: %w", task, err)
	}

	offsets := task.GetOffsetsToCommit()
	if len(offsets) == 0 {
		return nil
	}

	toCommit := make(map[string]map[int32]kgo.EpochOffset, len(offsets))
	for topic, offset := range offsets {
		toCommit[topic] = map[int32]kgo.EpochOffset{task.partition: offset}
	}

	var commitErr error
	t.client.CommitOffsetsSync(ctx, toCommit, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
		commitErr = err
	})
	if commitErr != nil {
		return fmt.Errorf("failed to commit offsets for task %s: %w", task, commitErr)
	}

	task.ClearOffsets()
	return nil
}

func (t *TaskManager) Close(ctx context.Context) error {
	err := t.Commit(ctx)
	for _, task := range t.tasks {
		err = multierr.Append(err, task.Close())
	}
	t.tasks = nil
	return err
}

func (t *TaskManager) TaskFor(topic string, partition int32) (*Task, error) {
	for _, task := range t.tasks {
		if slices.Contains(task.topics, topic) && task.partition == partition {
			return task, nil
		}
	}
	return nil, ErrTaskNotFound
}
