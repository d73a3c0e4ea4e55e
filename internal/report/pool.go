package report

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/opentalk/internal/core"
)

// Pool runs background jobs for modules on a bounded set of goroutines.
// Go never blocks the caller: jobs wait in a queue until a worker is free.
type Pool struct {
	workers *pool.Pool
	queue   chan func()
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ core.Spawner = (*Pool)(nil)

func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 256
	}
	p := &Pool{
		workers: pool.New().WithMaxGoroutines(workers),
		queue:   make(chan func(), queue),
		done:    make(chan struct{}),
	}
	go p.dispatch()
	return p
}

func (p *Pool) dispatch() {
	defer close(p.done)
	for job := range p.queue {
		p.workers.Go(job)
	}
}

func (p *Pool) Go(job func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Warn().Str("module", "report.pool").Msg("job submitted after close")
		return
	}
	select {
	case p.queue <- job:
	default:
		// Queue full; run outside the pool rather than stall a runner.
		log.Warn().Str("module", "report.pool").Msg("queue full, running job unpooled")
		go job()
	}
}

// Close stops accepting jobs and waits for the queued ones.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
	p.workers.Wait()
}
