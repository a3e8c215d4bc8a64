package engine

import (
	"sync"

	"server/internal/domain"
)

// workerPool tracks the in-flight jobs of one job type. Dispatch happens in
// the engine; the pool only enforces the concurrency cap and lets Stop wait
// for running jobs to drain.
type workerPool struct {
	jobType   domain.JobType
	processor Processor
	cfg       PoolConfig

	mu       sync.Mutex
	inflight int
	wg       sync.WaitGroup
}

func newWorkerPool(p Processor, cfg PoolConfig) *workerPool {
	return &workerPool{
		jobType:   p.Type(),
		processor: p,
		cfg:       cfg.withDefaults(),
	}
}

// freeSlots returns how many more jobs the pool may take right now.
func (p *workerPool) freeSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Concurrency - p.inflight
}

// acquire claims one slot; it fails when the pool is at its cap.
func (p *workerPool) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight >= p.cfg.Concurrency {
		return false
	}
	p.inflight++
	p.wg.Add(1)
	return true
}

// release frees a slot once a job finished, regardless of outcome.
func (p *workerPool) release() {
	p.mu.Lock()
	p.inflight--
	p.mu.Unlock()
	p.wg.Done()
}

// inFlight reports the number of currently running jobs.
func (p *workerPool) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// drain blocks until every in-flight job has finished.
func (p *workerPool) drain() {
	p.wg.Wait()
}
