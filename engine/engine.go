// Package engine wires all relay subsystems together. It creates the hook
// registry, job registry, middleware chain, dispatch loops, and worker
// pool, and provides the Register/Enqueue operations applications call.
//
// This package exists to break the import cycle: the root relay package
// defines Entity and Config (imported by outbox, channel, etc.) and so
// cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/backoff"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/hook"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/job"
	mw "github.com/lsendel/relay/middleware"
	"github.com/lsendel/relay/notify"
	"github.com/lsendel/relay/observability"
	"github.com/lsendel/relay/outbox"
	"github.com/lsendel/relay/sender"
	"github.com/lsendel/relay/store"
	"github.com/lsendel/relay/worker"
)

// Engine composes a store with the dispatch loops and the producer API.
// Use New to create one; Start and Stop control the in-process pollers.
type Engine struct {
	cfg    relay.Config
	store  store.Store
	logger *slog.Logger
	clock  clockwork.Clock

	hooks    *hook.Registry
	registry *job.Registry
	producer *outbox.Producer
	channels *channel.Service

	jobLoop    *job.Dispatcher
	notifyLoop *notify.Dispatcher
	pool       *worker.Pool

	// Collected by options, wired in New.
	extensions []hook.Extension
	mws        []mw.Middleware
	bo         backoff.Strategy
	email      sender.Email
	webhook    *sender.Webhook
	slack      *sender.Slack
	plans      channel.PlanResolver

	// OpenTelemetry providers (nil means use the globals).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the loop tuning knobs. Zero-valued fields keep the
// defaults from relay.DefaultConfig.
func WithConfig(cfg relay.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithClock sets the clock injected into the producer, dispatchers, and
// worker pool. Tests inject a fake.
func WithClock(clock clockwork.Clock) Option {
	return func(eng *Engine) { eng.clock = clock }
}

// WithExtension registers a lifecycle extension with the engine.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) { eng.extensions = append(eng.extensions, e) }
}

// WithMiddleware appends middleware to the chain both dispatch loops run
// around each event.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry delay strategy for the job loop. If not set,
// the fixed JobRetryDelay from the config is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithEmailSender wires the transactional email sender used by the
// notification loop's email: path.
func WithEmailSender(e sender.Email) Option {
	return func(eng *Engine) { eng.email = e }
}

// WithWebhookSender replaces the default signed webhook sender.
func WithWebhookSender(w *sender.Webhook) Option {
	return func(eng *Engine) { eng.webhook = w }
}

// WithSlackSender replaces the default Slack incoming-webhook sender.
func WithSlackSender(s *sender.Slack) Option {
	return func(eng *Engine) { eng.slack = s }
}

// WithPlanResolver sets the plan lookup used by the channel registry.
// The default is a static free plan for every user.
func WithPlanResolver(p channel.PlanResolver) Option {
	return func(eng *Engine) { eng.plans = p }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses it instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, both the
// metrics middleware and the observability extension use it instead of
// the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine over the given store.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, relay.ErrNoStore
	}

	eng := &Engine{
		cfg:    relay.DefaultConfig(),
		store:  st,
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	normalizeConfig(&eng.cfg)

	eng.hooks = hook.NewRegistry(eng.logger)
	eng.registry = job.NewRegistry()

	// Register the observability metrics extension before user extensions
	// so its counters see every lifecycle emission.
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/lsendel/relay/observability")
		eng.hooks.Register(observability.NewMetricsExtensionWithMeter(meter))
	} else {
		eng.hooks.Register(observability.NewMetricsExtension())
	}
	for _, e := range eng.extensions {
		eng.hooks.Register(e)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/lsendel/relay")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/lsendel/relay")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging.
	base := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	}
	base = append(base, eng.mws...)

	eng.producer = outbox.NewProducer(st,
		outbox.WithClock(eng.clock),
		outbox.WithLogger(eng.logger),
	)

	if eng.plans == nil {
		eng.plans = channel.StaticPlan(channel.FreePlan())
	}
	eng.channels = channel.NewService(st, eng.plans,
		channel.WithClock(eng.clock),
		channel.WithLogger(eng.logger),
	)

	// Job loop. Handlers additionally get a per-handler deadline so one
	// runaway job cannot hold the loop for the entire tick.
	jobMws := base
	if eng.cfg.TickDeadline > 0 {
		jobMws = append(append([]mw.Middleware{}, base...), mw.Timeout(eng.cfg.TickDeadline))
	}
	jobOpts := []job.DispatcherOption{
		job.WithBatchSize(eng.cfg.JobBatchSize),
		job.WithRetryDelay(eng.cfg.JobRetryDelay),
		job.WithMaxAttempts(eng.cfg.JobMaxAttempts),
		job.WithMiddleware(jobMws...),
		job.WithClock(eng.clock),
	}
	if eng.bo != nil {
		jobOpts = append(jobOpts, job.WithBackoff(eng.bo))
	}
	eng.jobLoop = job.NewDispatcher(st, eng.registry, eng.hooks, eng.logger, jobOpts...)

	// Notification loop.
	notifyOpts := []notify.DispatcherOption{
		notify.WithBatchSize(eng.cfg.NotifyBatchSize),
		notify.WithRetryDelay(eng.cfg.NotifyRetryDelay),
		notify.WithSendTimeout(eng.cfg.SendTimeout),
		notify.WithMiddleware(base...),
		notify.WithClock(eng.clock),
	}
	if eng.email != nil {
		notifyOpts = append(notifyOpts, notify.WithEmail(eng.email))
	}
	if eng.webhook != nil {
		notifyOpts = append(notifyOpts, notify.WithWebhookSender(eng.webhook))
	}
	if eng.slack != nil {
		notifyOpts = append(notifyOpts, notify.WithSlackSender(eng.slack))
	}
	eng.notifyLoop = notify.NewDispatcher(st, st, eng.hooks, eng.logger, notifyOpts...)

	eng.pool = worker.NewPool(eng.hooks, eng.logger,
		worker.WithPollInterval(eng.cfg.PollInterval),
		worker.WithClock(eng.clock),
	)
	eng.pool.Register(eng.boundRunner(eng.jobLoop))
	eng.pool.Register(eng.boundRunner(eng.notifyLoop))

	return eng, nil
}

// normalizeConfig fills zero-valued knobs with the reference defaults.
// TickDeadline, JobMaxAttempts, and NotifyRetryDelay are left alone: zero
// is a meaningful setting for each.
func normalizeConfig(cfg *relay.Config) {
	def := relay.DefaultConfig()
	if cfg.JobBatchSize <= 0 {
		cfg.JobBatchSize = def.JobBatchSize
	}
	if cfg.JobRetryDelay <= 0 {
		cfg.JobRetryDelay = def.JobRetryDelay
	}
	if cfg.NotifyBatchSize <= 0 {
		cfg.NotifyBatchSize = def.NotifyBatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
}

// boundRunner caps each tick of a dispatch loop with the configured
// deadline so one unresponsive endpoint cannot stall the poller forever.
func (eng *Engine) boundRunner(r worker.Runner) worker.Runner {
	if eng.cfg.TickDeadline <= 0 {
		return r
	}
	return deadlineRunner{Runner: r, deadline: eng.cfg.TickDeadline}
}

type deadlineRunner struct {
	worker.Runner
	deadline time.Duration
}

func (r deadlineRunner) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()
	return r.Runner.RunOnce(ctx)
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// EnqueueJob inserts a pending event for a background job of the given
// kind. The job loop picks it up on a later tick.
func EnqueueJob[T any](ctx context.Context, eng *Engine, kind job.Kind, payload T, opts ...outbox.EnqueueOption) (*outbox.Event, error) {
	if _, err := job.ParseKind(kind.String()); err != nil {
		return nil, err
	}
	ev, err := eng.producer.EnqueueJob(ctx, kind.String(), payload, opts...)
	if err != nil {
		return nil, err
	}
	eng.hooks.EmitEventEnqueued(ctx, ev)
	return ev, nil
}

// EnqueueEmail inserts a pending templated-email event.
func (eng *Engine) EnqueueEmail(ctx context.Context, n outbox.EmailNotification, opts ...outbox.EnqueueOption) (*outbox.Event, error) {
	ev, err := eng.producer.EnqueueEmail(ctx, n, opts...)
	if err != nil {
		return nil, err
	}
	eng.hooks.EmitEventEnqueued(ctx, ev)
	return ev, nil
}

// EnqueueWebhook inserts a pending webhook event.
func (eng *Engine) EnqueueWebhook(ctx context.Context, n outbox.WebhookNotification, opts ...outbox.EnqueueOption) (*outbox.Event, error) {
	ev, err := eng.producer.EnqueueWebhook(ctx, n, opts...)
	if err != nil {
		return nil, err
	}
	eng.hooks.EmitEventEnqueued(ctx, ev)
	return ev, nil
}

// EnqueueAlert inserts a pending alert event. The target URL may be a
// Slack incoming webhook; the notification loop detects that at delivery
// time.
func (eng *Engine) EnqueueAlert(ctx context.Context, n outbox.WebhookNotification, opts ...outbox.EnqueueOption) (*outbox.Event, error) {
	ev, err := eng.producer.EnqueueAlert(ctx, n, opts...)
	if err != nil {
		return nil, err
	}
	eng.hooks.EmitEventEnqueued(ctx, ev)
	return ev, nil
}

// EnqueueNotification inserts a pending fan-out-only event.
func (eng *Engine) EnqueueNotification(ctx context.Context, n outbox.Notification, opts ...outbox.EnqueueOption) (*outbox.Event, error) {
	ev, err := eng.producer.EnqueueNotification(ctx, n, opts...)
	if err != nil {
		return nil, err
	}
	eng.hooks.EmitEventEnqueued(ctx, ev)
	return ev, nil
}

// Replay returns a terminal event to the pending queue with zero attempts.
func (eng *Engine) Replay(ctx context.Context, eventID id.EventID) error {
	return eng.producer.Replay(ctx, eventID)
}

// Migrate applies the store's schema migrations.
func (eng *Engine) Migrate(ctx context.Context) error {
	return eng.store.Migrate(ctx)
}

// Start begins in-process polling of both dispatch loops.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.pool.Start(ctx)
}

// Stop gracefully shuts down the pollers, waiting for in-flight batches.
// When the context carries no deadline, the configured ShutdownTimeout is
// applied. The store is left open; the caller owns it.
func (eng *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}
	return eng.pool.Stop(ctx)
}

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

// Hooks returns the lifecycle hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Producer returns the outbox producer for direct use.
func (eng *Engine) Producer() *outbox.Producer { return eng.producer }

// Channels returns the channel registry service.
func (eng *Engine) Channels() *channel.Service { return eng.channels }

// JobDispatcher returns the job loop, e.g. to drive ticks manually.
func (eng *Engine) JobDispatcher() *job.Dispatcher { return eng.jobLoop }

// NotifyDispatcher returns the notification loop.
func (eng *Engine) NotifyDispatcher() *notify.Dispatcher { return eng.notifyLoop }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Config returns the engine's effective configuration.
func (eng *Engine) Config() relay.Config { return eng.cfg }
