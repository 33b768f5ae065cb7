package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay/backoff"
	"github.com/lsendel/relay/hook"
	"github.com/lsendel/relay/middleware"
	"github.com/lsendel/relay/outbox"
)

const (
	defaultBatchSize  = 10
	defaultRetryDelay = 120 * time.Second
)

// Dispatcher claims due job events from the outbox and executes their
// registered handlers. Each invocation of RunOnce processes a single batch;
// a worker.Pool drives the polling cadence.
//
// Failures always reschedule: RetryEvent pushes AvailableAt forward by the
// backoff strategy's delay and the event stays in the queue. With
// MaxAttempts set, an
// event that exhausts its attempts is marked failed instead and requires
// an operator replay.
type Dispatcher struct {
	store    outbox.Store
	registry *Registry
	hooks    *hook.Registry
	mw       middleware.Middleware
	clock    clockwork.Clock
	logger   *slog.Logger

	batchSize   int
	backoff     backoff.Strategy
	maxAttempts int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBatchSize sets the maximum number of events claimed per tick.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithRetryDelay sets a fixed delay before a failed job becomes claimable
// again.
func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.backoff = backoff.Fixed(delay) }
}

// WithBackoff sets the retry delay strategy. Overrides WithRetryDelay.
func WithBackoff(s backoff.Strategy) DispatcherOption {
	return func(d *Dispatcher) { d.backoff = s }
}

// WithMaxAttempts caps how many times a job is attempted before it is
// marked terminally failed. Zero (the default) retries forever.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// WithMiddleware sets the middleware chain applied around each handler call.
func WithMiddleware(mws ...middleware.Middleware) DispatcherOption {
	return func(d *Dispatcher) { d.mw = middleware.Chain(mws...) }
}

// WithClock sets the clock used for retry scheduling. Tests inject a fake.
func WithClock(clock clockwork.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = clock }
}

// NewDispatcher creates a job dispatcher.
func NewDispatcher(store outbox.Store, registry *Registry, hooks *hook.Registry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		registry:  registry,
		hooks:     hooks,
		mw:        middleware.Chain(),
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		batchSize: defaultBatchSize,
		backoff:   backoff.Fixed(defaultRetryDelay),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies this runner in worker pool logs.
func (d *Dispatcher) Name() string { return "job-dispatcher" }

// RunOnce claims one batch of due job events and executes them sequentially.
// Only kinds with a registered handler are claimed, so unknown kinds are
// left in the queue untouched. Per-event failures are absorbed into retry
// scheduling; RunOnce returns an error only when the claim itself fails.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	kinds := d.registry.Kinds()
	if len(kinds) == 0 {
		return nil
	}

	types := make([]string, len(kinds))
	for i, k := range kinds {
		types[i] = k.String()
	}

	events, err := d.store.ClaimEvents(ctx, outbox.Claim{Types: types}, d.batchSize)
	if err != nil {
		return fmt.Errorf("claim job events: %w", err)
	}

	for _, ev := range events {
		d.hooks.EmitEventClaimed(ctx, ev)
		d.process(ctx, ev)
	}
	return nil
}

// process executes a single claimed event through the middleware chain and
// records the outcome in the store.
func (d *Dispatcher) process(ctx context.Context, ev *outbox.Event) {
	start := d.clock.Now()

	terminal := func(ctx context.Context) error {
		kind, err := ParseKind(ev.Type)
		if err != nil {
			return err
		}
		handler, ok := d.registry.Get(kind)
		if !ok {
			return fmt.Errorf("no handler registered for job %q", ev.Type)
		}
		return handler(ctx, ev.Payload)
	}

	err := d.mw(ctx, ev, terminal)
	elapsed := d.clock.Now().Sub(start)

	if err != nil {
		d.handleFailure(ctx, ev, err)
		return
	}

	if completeErr := d.store.CompleteEvent(ctx, ev.ID); completeErr != nil {
		d.logger.Error("failed to mark job event completed",
			slog.String("event_id", ev.ID.String()),
			slog.String("kind", ev.Type),
			slog.String("error", completeErr.Error()),
		)
		return
	}

	d.hooks.EmitEventCompleted(ctx, ev, elapsed)

	d.logger.Info("job completed",
		slog.String("event_id", ev.ID.String()),
		slog.String("kind", ev.Type),
		slog.Duration("elapsed", elapsed),
	)
}

// handleFailure reschedules the event for retry, or marks it terminally
// failed once MaxAttempts is exhausted.
func (d *Dispatcher) handleFailure(ctx context.Context, ev *outbox.Event, handlerErr error) {
	attempt := ev.Attempts + 1

	if d.maxAttempts > 0 && attempt >= d.maxAttempts {
		if failErr := d.store.FailEvent(ctx, ev.ID, handlerErr.Error()); failErr != nil {
			d.logger.Error("failed to mark job event failed",
				slog.String("event_id", ev.ID.String()),
				slog.String("error", failErr.Error()),
			)
			return
		}
		d.hooks.EmitEventFailed(ctx, ev, handlerErr)
		d.logger.Warn("job failed terminally after exhausting attempts",
			slog.String("event_id", ev.ID.String()),
			slog.String("kind", ev.Type),
			slog.Int("attempts", attempt),
			slog.String("error", handlerErr.Error()),
		)
		return
	}

	delay := d.backoff(attempt)
	if retryErr := d.store.RetryEvent(ctx, ev.ID, handlerErr.Error(), delay); retryErr != nil {
		d.logger.Error("failed to reschedule job event",
			slog.String("event_id", ev.ID.String()),
			slog.String("error", retryErr.Error()),
		)
		return
	}

	nextAt := d.clock.Now().Add(delay)
	d.hooks.EmitEventRetrying(ctx, ev, attempt, nextAt)

	d.logger.Info("job scheduled for retry",
		slog.String("event_id", ev.ID.String()),
		slog.String("kind", ev.Type),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", handlerErr.Error()),
	)
}
