package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	TASK_CHAN_SIZE = 100
)

type WorkerFunction = func(t *tomb.Tomb, task any) error
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // task connection pool
}

func NewWorkerPool(size uint) WorkerPool {
	if size == 0 {
		size = 1
	}
	return WorkerPool{
		n:     int(size),
		tasks: make(chan any, TASK_CHAN_SIZE),
	}
}

// Size is the number of workers Setup keeps running.
func (pool *WorkerPool) Size() int {
	return pool.n
}

// AddTask queues a task for the next free worker. It blocks while the
// queue is full.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup starts the workers on t. A worker whose task fails kills the tomb,
// taking the rest of the pool down with it.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	for id := 0; id < pool.n; id++ {
		t.Go(func() error {
			return pool.worker(t, id, work)
		})
	}
}

// Workers wait on tasks in the task connection pool and action them.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
