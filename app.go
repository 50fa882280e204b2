package streamhaus

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// App runs a topology against a broker cluster with one or more worker
// routines sharing a consumer group.
type App struct {
	topology  *Topology
	groupName string

	instanceID string

	numRoutines    int
	brokers        []string
	commitInterval time.Duration

	log logr.Logger

	routines []*Worker
	eg       *errgroup.Group
}

type Option func(*App)

func WithBrokers(brokers ...string) Option {
	return func(a *App) {
		a.brokers = brokers
	}
}

func WithNumRoutines(n int) Option {
	return func(a *App) {
		a.numRoutines = n
	}
}

func WithLogger(log logr.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

func WithCommitInterval(interval time.Duration) Option {
	return func(a *App) {
		a.commitInterval = interval
	}
}

func New(topology *Topology, groupName string, opts ...Option) *App {
	a := &App{
		topology:       topology,
		groupName:      groupName,
		instanceID:     uuid.NewString(),
		numRoutines:    1,
		brokers:        []string{"localhost:9092"},
		commitInterval: time.Second * 5,
		log:            logr.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithValues("group", a.groupName, "instance", a.instanceID)
	return a
}

// Run blocks until all workers exited, either due to an error or a graceful
// shutdown triggered by Close.
func (a *App) Run() error {
	grp := errgroup.Group{}
	a.eg = &grp
	for i := 0; i < a.numRoutines; i++ {
		worker, err := NewWorker(a.log.WithName("worker"), fmt.Sprintf("%s-%d", a.instanceID, i), a.topology, a.groupName, a.brokers, a.commitInterval)
		if err != nil {
			return err
		}
		a.routines = append(a.routines, worker)
		grp.Go(worker.Run)
	}
	return grp.Wait()
}

// Close gracefully shuts down all workers.
func (a *App) Close() error {
	var wg sync.WaitGroup
	for _, worker := range a.routines {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			_ = w.Close()
		}(worker)
	}
	wg.Wait()

	if a.eg != nil {
		return a.eg.Wait()
	}
	return nil
}
