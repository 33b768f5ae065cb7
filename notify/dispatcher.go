package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/hook"
	"github.com/lsendel/relay/middleware"
	"github.com/lsendel/relay/outbox"
	"github.com/lsendel/relay/sender"
)

const (
	defaultBatchSize   = 20
	defaultSendTimeout = 10 * time.Second
)

// notificationClaim selects the rows the notification loop owns: fan-out
// markers plus the legacy email:/webhook: taxonomy. Anything else is left
// in the queue for other consumers.
func notificationClaim() outbox.Claim {
	return outbox.Claim{
		Types:    []string{outbox.TypeNotification},
		Prefixes: []string{outbox.TypePrefixEmail, outbox.TypePrefixWebhook},
	}
}

// Dispatcher claims due notification events, performs the legacy direct
// delivery, then fans the event out to the user's matching channels. Each
// channel attempt is isolated; the aggregate Outcome decides the event's
// terminal status.
//
// A loop-level failure (payload parse, legacy delivery, channel resolution)
// reschedules the row with RetryDelay. The default delay is zero, so a
// broken row is re-claimable on the very next tick; watch the
// "notification rescheduled" log line for hot-looping rows.
type Dispatcher struct {
	store    outbox.Store
	channels channel.Store

	webhook  *sender.Webhook
	slack    *sender.Slack
	email    sender.Email
	renderer *Renderer

	hooks  *hook.Registry
	mw     middleware.Middleware
	clock  clockwork.Clock
	logger *slog.Logger

	batchSize   int
	retryDelay  time.Duration
	sendTimeout time.Duration
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

// WithRetryDelay sets the delay applied on loop-level failures. Zero (the
// default) keeps the reference behavior of immediate re-claim.
func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.retryDelay = delay }
}

// WithSendTimeout bounds each outbound delivery call.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.sendTimeout = timeout }
}

// WithEmail wires the transactional email sender used by the legacy
// email: path. Without one, email rows fail retryably.
func WithEmail(e sender.Email) DispatcherOption {
	return func(d *Dispatcher) { d.email = e }
}

// WithWebhookSender replaces the default webhook sender.
func WithWebhookSender(w *sender.Webhook) DispatcherOption {
	return func(d *Dispatcher) { d.webhook = w }
}

// WithSlackSender replaces the default Slack sender.
func WithSlackSender(s *sender.Slack) DispatcherOption {
	return func(d *Dispatcher) { d.slack = s }
}

// WithRenderer replaces the default email template renderer.
func WithRenderer(r *Renderer) DispatcherOption {
	return func(d *Dispatcher) { d.renderer = r }
}

// WithMiddleware sets the middleware chain applied around each event.
func WithMiddleware(mws ...middleware.Middleware) DispatcherOption {
	return func(d *Dispatcher) { d.mw = middleware.Chain(mws...) }
}

// WithClock sets the clock used for timestamps. Tests inject a fake.
func WithClock(clock clockwork.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = clock }
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(store outbox.Store, channels channel.Store, hooks *hook.Registry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		channels:    channels,
		webhook:     sender.NewWebhook(),
		slack:       sender.NewSlack(),
		renderer:    NewRenderer(),
		hooks:       hooks,
		mw:          middleware.Chain(),
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		batchSize:   defaultBatchSize,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies this runner in worker pool logs.
func (d *Dispatcher) Name() string { return "notify-dispatcher" }

// RunOnce claims one batch of due notification events, oldest first, and
// processes them sequentially. Per-event failures are absorbed into
// rescheduling; RunOnce returns an error only when the claim itself fails.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	events, err := d.store.ClaimEvents(ctx, notificationClaim(), d.batchSize)
	if err != nil {
		return fmt.Errorf("claim notification events: %w", err)
	}

	for _, ev := range events {
		d.hooks.EmitEventClaimed(ctx, ev)
		d.process(ctx, ev)
	}
	return nil
}

// deliveryResult tallies one event's channel fan-out.
type deliveryResult struct {
	attempted int
	failed    int
}

func (r deliveryResult) outcome() Outcome {
	return resolveOutcome(r.attempted, r.failed)
}

// process runs one claimed event through the middleware chain and records
// the terminal status.
func (d *Dispatcher) process(ctx context.Context, ev *outbox.Event) {
	start := d.clock.Now()

	var result deliveryResult
	terminal := func(ctx context.Context) error {
		res, err := d.deliver(ctx, ev)
		result = res
		return err
	}

	err := d.mw(ctx, ev, terminal)
	elapsed := d.clock.Now().Sub(start)

	if err != nil {
		d.reschedule(ctx, ev, err)
		return
	}

	outcome := result.outcome()
	if outcome.Terminal() {
		cause := fmt.Sprintf("all %d channels failed", result.attempted)
		if failErr := d.store.FailEvent(ctx, ev.ID, cause); failErr != nil {
			d.logger.Error("failed to mark notification failed",
				slog.String("event_id", ev.ID.String()),
				slog.String("error", failErr.Error()),
			)
			return
		}
		d.hooks.EmitEventFailed(ctx, ev, fmt.Errorf("notify: %s", cause))
		d.logger.Warn("notification failed on every channel",
			slog.String("event_id", ev.ID.String()),
			slog.String("type", ev.Type),
			slog.Int("channels", result.attempted),
		)
		return
	}

	if completeErr := d.store.CompleteEvent(ctx, ev.ID); completeErr != nil {
		d.logger.Error("failed to mark notification completed",
			slog.String("event_id", ev.ID.String()),
			slog.String("error", completeErr.Error()),
		)
		return
	}
	d.hooks.EmitEventCompleted(ctx, ev, elapsed)

	d.logger.Info("notification delivered",
		slog.String("event_id", ev.ID.String()),
		slog.String("type", ev.Type),
		slog.String("outcome", outcome.String()),
		slog.Int("channels_attempted", result.attempted),
		slog.Int("channels_failed", result.failed),
		slog.Duration("elapsed", elapsed),
	)
}

// deliver performs the legacy delivery and the channel fan-out for one
// event. The returned error is loop-level: it means the row itself could
// not be processed and should be rescheduled. Individual channel failures
// are tallied in the result, never returned.
func (d *Dispatcher) deliver(ctx context.Context, ev *outbox.Event) (deliveryResult, error) {
	var result deliveryResult

	var payload outbox.DeliveryPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return result, fmt.Errorf("parse payload: %w", err)
		}
	}

	if err := d.withSendTimeout(ctx, func(ctx context.Context) error {
		return d.deliverLegacy(ctx, ev, payload)
	}); err != nil {
		return result, fmt.Errorf("legacy delivery: %w", err)
	}

	// Fan-out requires both a channel owner and a logical event name.
	if ev.UserID == "" || ev.EventType == "" {
		return result, nil
	}

	matched, err := d.channels.MatchChannels(ctx, ev.UserID, ev.EventType, ev.ProjectID)
	if err != nil {
		return result, fmt.Errorf("resolve channels: %w", err)
	}

	for _, ch := range matched {
		d.deliverChannel(ctx, ev, ch, payload.Data, &result)
	}

	return result, nil
}

// deliverChannel sends one event to one channel and updates the tally.
// Errors never escape: they are logged, emitted as hooks, and counted.
func (d *Dispatcher) deliverChannel(ctx context.Context, ev *outbox.Event, ch *channel.Channel, data map[string]any, result *deliveryResult) {
	var send func(ctx context.Context) error

	switch ch.Type {
	case channel.TypeWebhook:
		send = func(ctx context.Context) error {
			return d.webhook.Send(ctx, ch.Config[channel.ConfigURL], ch.Config[channel.ConfigSecret], ev.EventType, data)
		}
	case channel.TypeSlackIncoming:
		send = func(ctx context.Context) error {
			return d.slack.Send(ctx, ch.Config[channel.ConfigURL], ev.EventType, data)
		}
	case channel.TypeEmail, channel.TypeSlackApp:
		// Email is covered by the legacy path; slack_app has no transport
		// configured. Neither counts as an attempt.
		d.logger.Debug("channel type skipped in fan-out",
			slog.String("event_id", ev.ID.String()),
			slog.String("channel_id", ch.ID.String()),
			slog.String("channel_type", string(ch.Type)),
		)
		return
	default:
		d.logger.Debug("unrecognized channel type skipped",
			slog.String("event_id", ev.ID.String()),
			slog.String("channel_id", ch.ID.String()),
			slog.String("channel_type", string(ch.Type)),
		)
		return
	}

	result.attempted++
	start := d.clock.Now()
	err := d.withSendTimeout(ctx, send)
	elapsed := d.clock.Now().Sub(start)

	if err != nil {
		result.failed++
		d.hooks.EmitChannelFailed(ctx, ev, ch, err)
		d.logger.Error("channel delivery failed",
			slog.String("event_id", ev.ID.String()),
			slog.String("channel_id", ch.ID.String()),
			slog.String("channel_type", string(ch.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	d.hooks.EmitChannelDelivered(ctx, ev, ch, elapsed)
}

// reschedule returns a row to the queue after a loop-level failure.
func (d *Dispatcher) reschedule(ctx context.Context, ev *outbox.Event, cause error) {
	if retryErr := d.store.RetryEvent(ctx, ev.ID, cause.Error(), d.retryDelay); retryErr != nil {
		d.logger.Error("failed to reschedule notification",
			slog.String("event_id", ev.ID.String()),
			slog.String("error", retryErr.Error()),
		)
		return
	}

	attempt := ev.Attempts + 1
	d.hooks.EmitEventRetrying(ctx, ev, attempt, d.clock.Now().Add(d.retryDelay))

	d.logger.Warn("notification rescheduled",
		slog.String("event_id", ev.ID.String()),
		slog.String("type", ev.Type),
		slog.Int("attempt", attempt),
		slog.Duration("delay", d.retryDelay),
		slog.String("error", cause.Error()),
	)
}

// withSendTimeout bounds an outbound call with the configured timeout.
func (d *Dispatcher) withSendTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.sendTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return fn(ctx)
}
