// Package worker drives the polling cadence of the dispatch loops.
//
// A Pool owns one goroutine per registered Runner and invokes RunOnce on a
// fixed interval. Runners never overlap with themselves: a slow batch
// simply delays the next tick.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay/hook"
	"github.com/lsendel/relay/id"
)

const defaultPollInterval = 5 * time.Second

// Runner is one dispatch loop. RunOnce claims and processes a single
// batch; the pool decides when it runs again.
type Runner interface {
	Name() string
	RunOnce(ctx context.Context) error
}

type entry struct {
	runner   Runner
	interval time.Duration
}

// Pool polls a set of runners, each on its own goroutine and interval.
type Pool struct {
	hooks    *hook.Registry
	clock    clockwork.Clock
	logger   *slog.Logger
	workerID id.WorkerID

	defaultInterval time.Duration
	entries         []entry

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPollInterval sets the default tick interval for runners registered
// without an explicit one.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.defaultInterval = d
		}
	}
}

// WithClock sets the clock driving the tickers. Tests inject a fake.
func WithClock(clock clockwork.Clock) PoolOption {
	return func(p *Pool) { p.clock = clock }
}

// NewPool creates an empty pool. Register runners before calling Start.
func NewPool(hooks *hook.Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		hooks:           hooks,
		clock:           clockwork.NewRealClock(),
		logger:          logger,
		workerID:        id.NewWorkerID(),
		defaultInterval: defaultPollInterval,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Register adds a runner polled at the pool's default interval.
func (p *Pool) Register(r Runner) {
	p.RegisterEvery(r, 0)
}

// RegisterEvery adds a runner polled at its own interval. A non-positive
// interval falls back to the pool default. Registration after Start has
// no effect.
func (p *Pool) RegisterEvery(r Runner, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn("runner registered after pool start, ignoring",
			slog.String("runner", r.Name()),
		)
		return
	}
	if interval <= 0 {
		interval = p.defaultInterval
	}
	p.entries = append(p.entries, entry{runner: r, interval: interval})
}

// Start launches one polling goroutine per registered runner. Each runner
// ticks immediately, then on its interval. Start returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("runners", len(p.entries)),
	)

	for _, e := range p.entries {
		p.wg.Add(1)
		go p.pollLoop(e)
	}
	return nil
}

// Stop signals all runners to stop and waits for in-flight batches to
// finish. If ctx expires first, Stop returns its error without waiting
// further; the goroutines exit at their next tick check.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		p.hooks.EmitShutdown(ctx)
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out with batches in flight")
		return ctx.Err()
	}
}

func (p *Pool) pollLoop(e entry) {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(e.interval)
	defer ticker.Stop()

	p.tick(e)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.Chan():
			p.tick(e)
		}
	}
}

func (p *Pool) tick(e entry) {
	if err := e.runner.RunOnce(context.Background()); err != nil {
		p.logger.Error("runner tick failed",
			slog.String("runner", e.runner.Name()),
			slog.String("error", err.Error()),
		)
	}
}
