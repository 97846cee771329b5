package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/nimasrn/support-inbox/pkg/logger"
)

var ErrStopped = errors.New("worker manager stopped")

type WorkerHandler = func(workerIndex int, job interface{})

type WorkerManager struct {
	bufferSize     int
	jobChannel     chan interface{}
	numberOfWorker int
	quit           chan struct{}
	once           sync.Once
	do             WorkerHandler
	waiter         *sync.WaitGroup
}

// NewWorkerManager is a job manager based on go routines. Define the number of
// workers, and start publishing jobs with Enqueue. Jobs are distributed among the
// pool until Exit is called. The job channel is never closed by the manager because
// it may be shared with other producers.
func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}

	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     jobChannel,
		quit:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

// Backlog is the number of jobs waiting for a free worker.
func (w *WorkerManager) Backlog() int {
	return len(w.jobChannel)
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue publishes a job onto the channel. It gives up when ctx is done or the
// manager is stopped.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) error {
	select {
	case w.jobChannel <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrStopped
	}
}

// Start starts the workers and blocks until Exit is called.
func (w *WorkerManager) Start() error {
	if w.do == nil {
		return errors.New("worker handler is not set")
	}
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.do(index, job)
				case <-w.quit:
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	return ErrStopped
}

// Exit stops every worker after its current job.
func (w *WorkerManager) Exit() {
	w.once.Do(func() {
		logger.Info("worker manager is shutting down", "workers", w.numberOfWorker)
		close(w.quit)
	})
}
