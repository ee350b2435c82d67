package worker

import (
	"errors"
	"sync"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
)

var ErrWorkersTerminated = errors.New("workers terminated")

type WorkerHandler = func(workerIndex int, job interface{})

type WorkerManager struct {
	bufferSize     int
	jobChannel     chan interface{}
	numberOfWorker int
	quit           chan struct{}
	quitOnce       sync.Once
	do             WorkerHandler
	waiter         *sync.WaitGroup
}

// NewWorkerManager
// is a job manager based on go routines. Define the number of internal
// workers, and start publishing jobs using WorkerManager Enqueue() API. It will distribute the job
// among its internal pool. To stop the workers call Exit(); the job channel is NOT closed,
// because it may be externally passed to this instance and shared with other processes.
func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}

	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     jobChannel,
		quit:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	if w.jobChannel == nil {
		return 0
	}
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue
// Publishes a job onto the channel. It returns false when the manager has exited.
func (w *WorkerManager) Enqueue(val interface{}) bool {
	select {
	case <-w.quit:
		return false
	case w.jobChannel <- val:
		return true
	}
}

// Start
// starts off the workers as many as defined
// by w.numberOfWorker and blocks until Exit is called
// and every in-flight job returned.
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
				case <-w.quit:
					return
				case job := <-w.jobChannel:
					w.do(index, job)
				}
			}
		}(i)
	}
	w.waiter.Wait()

	return ErrWorkersTerminated
}

// Exit
// stops all workers. Safe to call more than once.
func (w *WorkerManager) Exit() {
	w.quitOnce.Do(func() {
		logger.Info("Exit() is called and worker manager is going to be shutdown")
		close(w.quit)
	})
}
