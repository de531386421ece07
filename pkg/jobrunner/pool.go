package jobrunner

import (
	"context"
	"log/slog"
	"sync"
)

// ThreadPool runs jobs on a bounded in-process worker pool, following
// tarsy's queue.WorkerPool/Worker shape (fixed worker count, graceful
// Stop that drains in-flight work, no per-job retry). Unlike the teacher,
// there is no database-backed queue table to poll: jobs arrive directly
// via Enqueue over a buffered channel.
type ThreadPool struct {
	concurrency int
	queue       chan Job
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// NewThreadPool builds a ThreadPool with concurrency workers and a queue
// depth of queueSize.
func NewThreadPool(concurrency, queueSize int) *ThreadPool {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = concurrency
	}
	return &ThreadPool{
		concurrency: concurrency,
		queue:       make(chan Job, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Start spawns the worker goroutines. Safe to call once; later calls are
// no-ops.
func (p *ThreadPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *ThreadPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case job := <-p.queue:
			if err := job.Run(ctx); err != nil {
				slog.Error("job failed", "job", job.Name, "error", err)
			}
		}
	}
}

// Enqueue blocks until the queue has room or ctx is done.
func (p *ThreadPool) Enqueue(ctx context.Context, job Job) error {
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals workers to finish their current job and exit, then waits
// for them. In-flight jobs complete; queued-but-unstarted jobs are dropped.
func (p *ThreadPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
