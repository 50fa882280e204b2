package streamhaus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"
)

type workerState string

const (
	stateCreated            workerState = "CREATED"
	statePartitionsAssigned workerState = "PARTITIONS_ASSIGNED"
	stateRunning            workerState = "RUNNING"
	stateCloseRequested     workerState = "CLOSE_REQUESTED"
	stateClosed             workerState = "CLOSED"
)

type assignedOrRevoked struct {
	assigned map[string][]int32
	revoked  map[string][]int32
}

// Worker drives one consumer-group member: it polls records, routes them to
// tasks, and commits offsets periodically. State transitions happen only
// inside Loop.
type Worker struct {
	name   string
	client *kgo.Client
	log    logr.Logger

	topology    *Topology
	taskManager *TaskManager

	state workerState

	rebalances chan assignedOrRevoked

	newlyAssigned map[string][]int32
	newlyRevoked  map[string][]int32

	closeRequested chan struct{}
	closed         sync.WaitGroup

	cancelPollMtx sync.Mutex
	cancelPoll    func()

	maxPollRecords       int
	pollTimeout          time.Duration
	commitInterval       time.Duration
	lastSuccessfulCommit time.Time

	err error
}

func NewWorker(log logr.Logger, name string, topology *Topology, group string, brokers []string, commitInterval time.Duration) (*Worker, error) {
	rebalances := make(chan assignedOrRevoked)

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topology.GetTopics()...),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			rebalances <- assignedOrRevoked{assigned: assigned}
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			rebalances <- assignedOrRevoked{revoked: revoked}
		}),
	)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		name:     name,
		client:   client,
		log:      log.WithValues("worker", name),
		topology: topology,
		taskManager: &TaskManager{
			client:   client,
			log:      log.WithName("task-manager"),
			topology: topology,
			pgs:      topology.getPartitionGroups(),
		},
		state:          stateCreated,
		rebalances:     rebalances,
		closeRequested: make(chan struct{}, 1),
		maxPollRecords: 10000,
		pollTimeout:    time.Second * 10,
		commitInterval: commitInterval,
	}
	w.closed.Add(1)
	return w, nil
}

func (w *Worker) changeState(to workerState) {
	w.log.V(1).Info("change state", "from", w.state, "to", to)
	w.state = to
}

func (w *Worker) Run() error {
	return w.loop()
}

func (w *Worker) loop() error {
	for {
		switch w.state {
		case stateCreated:
			w.handleCreated()
		case statePartitionsAssigned:
			w.handlePartitionsAssigned()
		case stateRunning:
			w.handleRunning()
		case stateCloseRequested:
			w.handleCloseRequested()
		case stateClosed:
			w.closed.Done()
			return w.err
		}
	}
}

func (w *Worker) handleCreated() {
	select {
	case ev := <-w.rebalances:
		w.newlyAssigned = ev.assigned
		w.newlyRevoked = ev.revoked
		w.changeState(statePartitionsAssigned)
	case <-w.closeRequested:
		w.changeState(stateCloseRequested)
	}
}

func (w *Worker) handlePartitionsAssigned() {
	ctx := context.Background()
	if err := w.taskManager.Revoked(ctx, w.newlyRevoked); err != nil {
		w.log.Error(err, "failed to handle revoked partitions")
	}
	if err := w.taskManager.Assigned(w.newlyAssigned); err != nil {
		w.log.Error(err, "failed to handle assigned partitions")
		w.err = err
		w.changeState(stateCloseRequested)
		return
	}

	w.newlyAssigned = nil
	w.newlyRevoked = nil

	if len(w.taskManager.tasks) > 0 {
		w.changeState(stateRunning)
	} else {
		w.changeState(stateCreated)
	}
}

func (w *Worker) handleRunning() {
	w.cancelPollMtx.Lock()

	select {
	case ev := <-w.rebalances:
		w.newlyAssigned = ev.assigned
		w.newlyRevoked = ev.revoked
		w.changeState(statePartitionsAssigned)
		w.cancelPollMtx.Unlock()
		return
	default:
	}

	select {
	case <-w.closeRequested:
		w.changeState(stateCloseRequested)
		w.cancelPollMtx.Unlock()
		return
	default:
	}

	pollCtx, cancel := context.WithTimeout(context.Background(), w.pollTimeout)
	defer cancel()
	w.cancelPoll = cancel
	w.cancelPollMtx.Unlock()

	fetches := w.client.PollRecords(pollCtx, w.maxPollRecords)
	if fetches.IsClientClosed() {
		w.changeState(stateCloseRequested)
		return
	}
	if errors.Is(fetches.Err(), context.Canceled) {
		return
	}

	if !errors.Is(fetches.Err(), context.DeadlineExceeded) {
		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.DeadlineExceeded) {
				continue
			}
			w.log.Error(fetchErr.Err, "fetch error", "topic", fetchErr.Topic, "partition", fetchErr.Partition)
			w.err = fmt.Errorf("fetch error on topic %s, partition %d: %w", fetchErr.Topic, fetchErr.Partition, fetchErr.Err)
			w.changeState(stateCloseRequested)
			return
		}

		failed := false
		fetches.EachPartition(func(fetch kgo.FetchTopicPartition) {
			if failed {
				return
			}
			task, err := w.taskManager.TaskFor(fetch.Topic, fetch.Partition)
			if err != nil {
				w.log.Error(err, "no task for fetched partition", "topic", fetch.Topic, "partition", fetch.Partition)
				w.err = err
				failed = true
				return
			}
			if err := task.Process(context.Background(), fetch.Records...); err != nil {
				w.log.Error(err, "failed to process records", "task", task.String())
				w.err = err
				failed = true
			}
		})
		if failed {
			w.changeState(stateCloseRequested)
			return
		}
	}

	commitCtx, commitCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer commitCancel()
	if err := w.maybeCommit(commitCtx); err != nil {
		w.log.Error(err, "failed to commit")
		w.err = err
		w.changeState(stateCloseRequested)
	}
}

func (w *Worker) maybeCommit(ctx context.Context) error {
	if time.Since(w.lastSuccessfulCommit) < w.commitInterval {
		return nil
	}
	if err := w.taskManager.Punctuate(ctx, time.Now()); err != nil {
		return err
	}
	if err := w.client.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush client: %w", err)
	}
	if err := w.taskManager.Commit(ctx); err != nil {
		return err
	}
	w.lastSuccessfulCommit = time.Now()
	return nil
}

func (w *Worker) handleCloseRequested() {
	ctx := context.Background()

	if err := w.client.Flush(ctx); err != nil {
		w.log.Error(err, "failed to flush client")
	}
	if err := w.taskManager.Close(ctx); err != nil {
		w.log.Error(err, "failed to close tasks")
	}

	drained := make(chan struct{})
	go func() {
		for range w.rebalances {
		}
		close(drained)
	}()

	w.client.Close()

	// The client is the only writer to the rebalance channel, so it may be
	// closed only after the client.
	close(w.rebalances)
	<-drained

	w.changeState(stateClosed)
}

// Close requests shutdown and blocks until the loop has terminated.
func (w *Worker) Close() error {
	w.cancelPollMtx.Lock()
	w.closeRequested <- struct{}{}
	if w.cancelPoll != nil {
		w.cancelPoll()
	}
	w.cancelPollMtx.Unlock()
	w.closed.Wait()
	return nil
}
