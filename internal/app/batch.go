package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/videosync/internal/adapters/mq/queue"
	"github.com/okian/videosync/internal/adapters/mq/worker"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/pkg/logger"
)

const enqueueRetry = 10 * time.Millisecond

// Summary is the outcome of a batch.
type Summary struct {
	Results []worker.Result
	Failed  int
}

// RunAll runs jobs on a worker pool. A failing job does not stop the others; the
// returned error wraps ErrJobsFailed and every job error. Results are in job order.
func (s *Service) RunAll(ctx context.Context, jobs []config.Job) (Summary, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]worker.Result, len(jobs))
	)
	collect := func(r worker.Result) {
		mu.Lock()
		results[r.Job.Name] = r
		mu.Unlock()
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	workers := min(s.cfg.WorkerCount, max(len(jobs), 1))
	pool := worker.NewPool(workers, q, s, worker.WithResults(collect), worker.WithLogger(s.logger.Named("worker")))
	pool.Start(ctx)
	s.logger.Info(ctx, "batch started", logger.Int("jobs", len(jobs)), logger.Int("workers", pool.Size()))

	for _, j := range jobs {
		if err := enqueue(ctx, q, j); err != nil {
			s.logger.Warn(ctx, "batch interrupted while queueing", logger.String("job", j.Name), logger.Error(err))
			break
		}
	}
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "batch stopped before the queue drained", logger.Error(err))
	}

	sum := Summary{Results: make([]worker.Result, len(jobs))}
	var errs []error
	for i, j := range jobs {
		r, ok := results[j.Name]
		if !ok {
			cause := context.Cause(ctx)
			if cause == nil {
				cause = errors.New("job was not run")
			}
			r = worker.Result{Job: j, Err: &RecordingError{Job: j.Name, Stage: StageQueue, Err: cause}}
		}
		sum.Results[i] = r
		if r.Err != nil {
			sum.Failed++
			errs = append(errs, r.Err)
		}
	}

	s.logger.Info(ctx, "batch finished", logger.Int("jobs", len(jobs)), logger.Int("failed", sum.Failed))
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%w: %d of %d: %w", ErrJobsFailed, sum.Failed, len(jobs), errors.Join(errs...))
	}
	return sum, nil
}

// enqueue waits for room in the queue.
func enqueue(ctx context.Context, q queue.Queue, j config.Job) error {
	for {
		err := q.Enqueue(ctx, j)
		if !errors.Is(err, queue.ErrFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(enqueueRetry):
		}
	}
}
