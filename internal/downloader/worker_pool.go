package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/quantfeed/go-binance-vision/internal/fetcher"
)

// TaskHandler executes one download task and reports its result by value.
type TaskHandler func(ctx context.Context, task Task) fetcher.Result

// WorkerPool fans download tasks out to a fixed number of workers. Results
// are delivered through per-submission callbacks as tasks complete, not in
// submission order.
type WorkerPool struct {
	workerCount int
	handler     TaskHandler
	logger      *slog.Logger

	jobQueue    chan *poolJob
	workerQueue chan chan *poolJob

	workers []worker
	quit    chan struct{}
	wg      sync.WaitGroup

	isStarted int32
}

// poolJob pairs a task with its completion callback.
type poolJob struct {
	ctx      context.Context
	task     Task
	callback func(fetcher.Result)
}

type worker struct {
	id          int
	workerQueue chan chan *poolJob
	jobChannel  chan *poolJob
	quit        chan struct{}
	handler     TaskHandler
	logger      *slog.Logger
}

// NewWorkerPool creates a pool of workerCount workers running handler.
func NewWorkerPool(workerCount int, handler TaskHandler, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		workerCount: workerCount,
		handler:     handler,
		logger:      logger,
		jobQueue:    make(chan *poolJob, workerCount*2),
		workerQueue: make(chan chan *poolJob, workerCount),
		quit:        make(chan struct{}),
	}
}

// Start launches the workers and the dispatcher.
func (wp *WorkerPool) Start() error {
	if !atomic.CompareAndSwapInt32(&wp.isStarted, 0, 1) {
		return fmt.Errorf("worker pool is already started")
	}

	wp.logger.Debug("starting worker pool", "worker_count", wp.workerCount)

	wp.workers = make([]worker, wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		w := worker{
			id:          i + 1,
			workerQueue: wp.workerQueue,
			jobChannel:  make(chan *poolJob),
			quit:        wp.quit,
			handler:     wp.handler,
			logger:      wp.logger,
		}
		wp.workers[i] = w
		wp.wg.Add(1)
		go w.run(wp.wg.Done)
	}

	wp.wg.Add(1)
	go wp.dispatch()
	return nil
}

// Stop shuts the pool down, waiting for in-flight tasks to finish or for
// the context to expire.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&wp.isStarted, 1, 0) {
		return fmt.Errorf("worker pool is not started")
	}

	close(wp.quit)

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		wp.logger.Warn("worker pool stop timed out")
		return ctx.Err()
	}
}

// Submit queues a task. The callback always fires exactly once, including
// when the context is cancelled before the task could be queued.
func (wp *WorkerPool) Submit(ctx context.Context, task Task, callback func(fetcher.Result)) {
	job := &poolJob{ctx: ctx, task: task, callback: callback}

	select {
	case wp.jobQueue <- job:
	case <-ctx.Done():
		callback(fetcher.Result{Outcome: fetcher.OutcomeFailed, Err: ctx.Err()})
	}
}

func (wp *WorkerPool) dispatch() {
	defer wp.wg.Done()

	for {
		select {
		case job := <-wp.jobQueue:
			select {
			case jobChannel := <-wp.workerQueue:
				jobChannel <- job
			case <-wp.quit:
				job.callback(fetcher.Result{Outcome: fetcher.OutcomeFailed, Err: fmt.Errorf("worker pool is shutting down")})
				return
			}
		case <-wp.quit:
			return
		}
	}
}

func (w *worker) run(done func()) {
	defer done()

	for {
		w.workerQueue <- w.jobChannel

		select {
		case job := <-w.jobChannel:
			w.process(job)
		case <-w.quit:
			return
		}
	}
}

// process runs one task. A panic inside the handler must never take down
// the run: it is recovered, logged and surfaced as a Failed result.
func (w *worker) process(job *poolJob) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked",
				"worker_id", w.id,
				"symbol", job.task.Symbol,
				"date", job.task.DateLabel,
				"panic", r)
			job.callback(fetcher.Result{Outcome: fetcher.OutcomeFailed, Err: fmt.Errorf("task panicked: %v", r)})
		}
	}()

	result := w.handler(job.ctx, job.task)
	job.callback(result)
}
