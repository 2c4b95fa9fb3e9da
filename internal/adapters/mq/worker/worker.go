package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/videosync/internal/adapters/mq/queue"
	"github.com/okian/videosync/pkg/logger"
	"github.com/okian/videosync/pkg/metrics"
)

// workerStopTimeout bounds the wait for busy workers once a pool shutdown gives up draining.
const workerStopTimeout = 5 * time.Second

// Runner processes one job.
type Runner interface {
	Run(ctx context.Context, j queue.Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, j queue.Job) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Result is the outcome of one job.
type Result struct {
	Job     queue.Job
	Worker  string
	Err     error
	Elapsed time.Duration
}

// Worker processes jobs until its queue drains or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in flight, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	runner  Runner
	name    string
	results func(Result)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, r Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		runner:   r,
		name:     "worker",
		results:  func(Result) {},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.results(w.process(ctx, j))
		}
	}
}

// Shutdown stops the worker and waits for it to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one job. A panicking job is reported as a failed job; it does not
// take the worker down.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) (res Result) {
	start := time.Now()
	res = Result{Job: j, Worker: w.name}

	metrics.AddWorkerBusy(1)
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("job %s panicked: %v", j.Name, p)
		}
		res.Elapsed = time.Since(start)
		metrics.AddWorkerBusy(-1)
		metrics.RecordWorkerProcessingLatency(float64(res.Elapsed.Milliseconds()))
		if res.Err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "job_failed")
			w.logger.Error(ctx, "job failed",
				logger.String("job", j.Name),
				logger.Duration("elapsed", res.Elapsed),
				logger.Error(res.Err))
			return
		}
		w.logger.Debug(ctx, "job done",
			logger.String("job", j.Name),
			logger.Duration("elapsed", res.Elapsed))
	}()

	res.Err = w.runner.Run(ctx, j)
	return res
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses one worker per CPU.
// opts are applied to every worker.
func NewPool(workerCount int, q Queue, r Runner, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, r, wopts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned, which happens once the queue is
// closed and drained or the run context is canceled.
func (p *Pool) Wait() {
	p.wg.Wait()
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown closes the queue, lets the workers drain it and waits for them. When ctx
// expires first the workers are stopped after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drained := make(chan struct{})
	go func() {
		p.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
	}

	p.logger.Warn(ctx, "pool drain timed out, stopping workers")
	stopCtx, cancel := context.WithTimeout(context.Background(), workerStopTimeout)
	defer cancel()
	for i, w := range p.workers {
		if err := w.Shutdown(stopCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return fmt.Errorf("pool shutdown: %w", ctx.Err())
}
