package pool

import (
	"context"
	"sync"

	"imagecurator/worker/kafka"
)

// WorkerPool bounds how many curation jobs run concurrently. Each task's
// working directory is touched by exactly one job at a time, so the pool
// needs no further locking.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

func (p *WorkerPool) Submit(ctx context.Context, msg *kafka.CurationMessage, handler func(context.Context, *kafka.CurationMessage) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			handler(ctx, msg)
		case <-ctx.Done():
		}
	}()
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
