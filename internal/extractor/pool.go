package extractor

import (
	"context"
	"errors"
	"sync"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
)

var ErrPoolClosed = errors.New("worker pool is shut down")

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
	err  error
}

// WorkerPool runs blocking extractor calls on a fixed number of workers.
type WorkerPool struct {
	name   string
	jobs   chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorkerPool(name string, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		name:   name,
		jobs:   make(chan *job),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workerCount; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}
	logutils.Log.WithFields(map[string]any{
		"pool":    name,
		"workers": workerCount,
	}).Debug("Worker pool started")
	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.jobs:
			if err := j.ctx.Err(); err == nil {
				j.fn(j.ctx)
			} else {
				j.err = err
				logutils.Log.WithFields(map[string]any{
					"pool":   p.name,
					"worker": id,
				}).Debug("Skipping job whose context ended while queued")
			}
			close(j.done)
		}
	}
}

// Do blocks until a worker has run fn, ctx ends while waiting for a free worker, or the pool shuts down.
// A nil error means fn ran to completion.
func (p *WorkerPool) Do(ctx context.Context, fn func(context.Context)) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
	<-j.done
	return j.err
}

func (p *WorkerPool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	logutils.Log.WithField("pool", p.name).Debug("Worker pool stopped")
}
