package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/observability"
)

// Task is the async tail of one admitted message.
type Task func(ctx context.Context)

// Pool executes the async pipeline stages on a fixed number of goroutines
// behind a bounded queue. Under saturation the policy is discard-oldest:
// the pool sacrifices older buffered work rather than blocking the
// connection-event thread or growing memory without bound. This is a
// deliberate lossy-under-overload contract.
type Pool struct {
	queue   chan Task
	size    int
	log     *slog.Logger
	monitor *observability.Monitor
	wg      sync.WaitGroup
}

func NewPool(size, queueDepth int, monitor *observability.Monitor, log *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Pool{
		queue:   make(chan Task, queueDepth),
		size:    size,
		log:     log,
		monitor: monitor,
	}
}

// Start launches the workers. They drain the queue until ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-p.queue:
					if !ok {
						return
					}
					task(ctx)
					p.monitor.SetQueueDepth(len(p.queue))
				}
			}
		}()
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Submit never blocks the caller. When the queue is full it evicts the
// oldest queued, not-yet-started task and retries until the new task fits.
func (p *Pool) Submit(task Task) {
	for {
		select {
		case p.queue <- task:
			p.monitor.SetQueueDepth(len(p.queue))
			return
		default:
		}
		select {
		case <-p.queue:
			p.monitor.RecordTaskDropped()
			p.log.Warn("Worker queue saturated, dropping oldest task", "depth", cap(p.queue))
		default:
			// A worker drained the queue between the two selects, retry the send
		}
	}
}

// Depth is the number of queued, not-yet-started tasks.
func (p *Pool) Depth() int {
	return len(p.queue)
}
