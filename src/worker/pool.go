package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Job is one unit of work. It runs on a worker goroutine with the context it
// was submitted with.
type Job func(ctx context.Context)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type job struct {
	ctx  context.Context
	name string
	run  Job
}

// New creates a worker pool. Size defaults to 1 when size<=0: processing
// requests replace the focused text and must not interleave.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for j := range p.jobs {
				p.runJob(id, j)
			}
		}(i)
	}
}

func (p *Pool) runJob(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in worker job", "worker", id, "job", j.name, "panic", r)
		}
	}()
	slog.Debug("worker: starting job", "worker", id, "job", j.name)
	j.run(j.ctx)
	slog.Debug("worker: job finished", "worker", id, "job", j.name)
}

// Submit enqueues a job if the single-slot queue is free. Returns false if
// dropped or if the pool is closed.
func (p *Pool) Submit(ctx context.Context, name string, run Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		slog.Warn("worker: pool closed, job dropped", "job", name)
		return false
	}
	select {
	case p.jobs <- job{ctx: ctx, name: name, run: run}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work. In-flight jobs finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
