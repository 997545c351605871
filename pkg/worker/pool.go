// Package worker runs tasks on a fixed set of goroutines pulling from one
// unbounded FIFO queue. Tasks may enqueue further tasks, and Wait blocks
// until the whole transitive fan-out has finished.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/logging"
	"github.com/Sternrassler/eve-marketwatch/pkg/stats"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/rs/zerolog"
)

// Worker is the context a task runs with. Each worker owns its own ESI
// session and stat counters.
type Worker struct {
	index   int
	name    string
	log     zerolog.Logger
	stats   *stats.Stats
	session *client.Session
	store   *store.Store
}

// Index returns the zero-based worker index.
func (w *Worker) Index() int { return w.index }

// Name returns the worker name, e.g. Worker00.
func (w *Worker) Name() string { return w.name }

// Log returns the worker logger.
func (w *Worker) Log() *zerolog.Logger { return &w.log }

// Stats returns the worker's counters.
func (w *Worker) Stats() *stats.Stats { return w.stats }

// Session returns the worker's ESI session, or nil if the pool has no
// client.
func (w *Worker) Session() *client.Session { return w.session }

// Store returns the store bound to the worker's counters, or nil if the
// pool has no store.
func (w *Worker) Store() *store.Store { return w.store }

// Config holds pool configuration.
type Config struct {
	// Size is the number of workers.
	Size int

	// Client creates one session per worker. Optional.
	Client *client.Client

	// Store is shared by every worker. Optional.
	Store *store.Store
}

// Pool is a fixed-size worker pool.
type Pool struct {
	mu      sync.Mutex
	ready   *sync.Cond
	idle    *sync.Cond
	queue   []Task
	pending int
	closed  bool

	workers []*Worker
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// New creates a pool. Call Start to launch the workers.
func New(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1 (got %d)", cfg.Size)
	}

	p := &Pool{
		log: logging.NewLogger("pool"),
	}
	p.ready = sync.NewCond(&p.mu)
	p.idle = sync.NewCond(&p.mu)

	for i := 0; i < cfg.Size; i++ {
		name := fmt.Sprintf("Worker%02d", i)
		w := &Worker{
			index: i,
			name:  name,
			log:   logging.NewLogger("worker").With().Str("worker", name).Logger(),
			stats: stats.New(),
		}
		if cfg.Client != nil {
			w.session = cfg.Client.NewSession(w.stats, w.log)
		}
		if cfg.Store != nil {
			w.store = cfg.Store.WithStats(w.stats)
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Log returns the pool logger.
func (p *Pool) Log() *zerolog.Logger {
	return &p.log
}

// Start launches the workers. Tasks receive ctx.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", len(p.workers)).Msg("Starting worker pool")
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.run(ctx, w)
	}
}

// Enqueue appends t to the queue. Tasks enqueued after Close are dropped.
func (p *Pool) Enqueue(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.log.Warn().Msg("Pool closed, dropping task")
		return
	}
	p.queue = append(p.queue, t)
	p.pending++
	queueDepth.Set(float64(len(p.queue)))
	p.ready.Signal()
}

// Wait blocks until every enqueued task, including tasks enqueued while
// waiting, has finished. It then drains the counters of every worker,
// logs the total and returns it.
func (p *Pool) Wait() *stats.Stats {
	p.mu.Lock()
	for p.pending > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()

	total := stats.New()
	for _, w := range p.workers {
		total.Add(w.stats.Drain())
	}
	total.Log(p.log, "Pool drained")
	return total
}

// Close stops the workers once the queue is empty and waits for them to
// exit.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.ready.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info().Msg("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, w *Worker) {
	defer p.wg.Done()

	for {
		t, ok := p.next()
		if !ok {
			return
		}
		p.execute(ctx, w, t)
		p.done()
	}
}

func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.ready.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}

	t := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	queueDepth.Set(float64(len(p.queue)))
	return t, true
}

func (p *Pool) done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
}

// execute runs t, converting errors and panics into log entries.
func (p *Pool) execute(ctx context.Context, w *Worker, t Task) {
	defer func() {
		if r := recover(); r != nil {
			tasksTotal.WithLabelValues("panic").Inc()
			w.log.Error().
				Interface("panic", r).
				Str("task", fmt.Sprintf("%T", t)).
				Msg("Task panicked")
		}
	}()

	if err := t.Execute(ctx, p, w); err != nil {
		tasksTotal.WithLabelValues("error").Inc()
		w.log.Error().
			Err(err).
			Str("task", fmt.Sprintf("%T", t)).
			Msg("Task failed")
		return
	}
	tasksTotal.WithLabelValues("ok").Inc()
}
