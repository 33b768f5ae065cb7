package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/hook"
	"github.com/lsendel/relay/outbox"
)

// meterName is the instrumentation scope name for relay metrics.
const meterName = "github.com/lsendel/relay/observability"

// Compile-time interface checks.
var (
	_ hook.Extension        = (*MetricsExtension)(nil)
	_ hook.EventEnqueued    = (*MetricsExtension)(nil)
	_ hook.EventClaimed     = (*MetricsExtension)(nil)
	_ hook.EventCompleted   = (*MetricsExtension)(nil)
	_ hook.EventFailed      = (*MetricsExtension)(nil)
	_ hook.EventRetrying    = (*MetricsExtension)(nil)
	_ hook.ChannelDelivered = (*MetricsExtension)(nil)
	_ hook.ChannelFailed    = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle metrics for every outbox event and
// channel delivery. All instruments are labeled with the event type;
// channel instruments add the channel type.
type MetricsExtension struct {
	enqueued  metric.Int64Counter
	claimed   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter

	processDuration metric.Float64Histogram

	channelDelivered metric.Int64Counter
	channelFailed    metric.Int64Counter
	deliveryDuration metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global OTel
// MeterProvider. Without a configured provider the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Tests inject a meter backed by a manual reader.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// The OTel API returns noop instruments on error, so construction
	// never fails.
	m.enqueued, _ = meter.Int64Counter("relay.outbox.enqueued", //nolint:errcheck // noop fallback
		metric.WithDescription("Total events enqueued"),
		metric.WithUnit("{event}"))
	m.claimed, _ = meter.Int64Counter("relay.outbox.claimed", //nolint:errcheck // noop fallback
		metric.WithDescription("Total events claimed by dispatch loops"),
		metric.WithUnit("{event}"))
	m.completed, _ = meter.Int64Counter("relay.outbox.completed", //nolint:errcheck // noop fallback
		metric.WithDescription("Total events completed"),
		metric.WithUnit("{event}"))
	m.failed, _ = meter.Int64Counter("relay.outbox.failed", //nolint:errcheck // noop fallback
		metric.WithDescription("Total events terminally failed"),
		metric.WithUnit("{event}"))
	m.retried, _ = meter.Int64Counter("relay.outbox.retried", //nolint:errcheck // noop fallback
		metric.WithDescription("Total events rescheduled for retry"),
		metric.WithUnit("{event}"))
	m.processDuration, _ = meter.Float64Histogram("relay.outbox.process.duration", //nolint:errcheck // noop fallback
		metric.WithDescription("Time from claim to terminal status in seconds"),
		metric.WithUnit("s"))
	m.channelDelivered, _ = meter.Int64Counter("relay.channel.delivered", //nolint:errcheck // noop fallback
		metric.WithDescription("Total successful channel deliveries"),
		metric.WithUnit("{delivery}"))
	m.channelFailed, _ = meter.Int64Counter("relay.channel.failed", //nolint:errcheck // noop fallback
		metric.WithDescription("Total failed channel deliveries"),
		metric.WithUnit("{delivery}"))
	m.deliveryDuration, _ = meter.Float64Histogram("relay.channel.delivery.duration", //nolint:errcheck // noop fallback
		metric.WithDescription("Per-channel delivery time in seconds"),
		metric.WithUnit("s"))

	return m
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func eventAttrs(ev *outbox.Event) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("type", ev.Type))
}

func channelAttrs(ev *outbox.Event, ch *channel.Channel) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("type", ev.Type),
		attribute.String("channel_type", string(ch.Type)),
	)
}

// OnEventEnqueued implements hook.EventEnqueued.
func (m *MetricsExtension) OnEventEnqueued(ctx context.Context, ev *outbox.Event) error {
	m.enqueued.Add(ctx, 1, eventAttrs(ev))
	return nil
}

// OnEventClaimed implements hook.EventClaimed.
func (m *MetricsExtension) OnEventClaimed(ctx context.Context, ev *outbox.Event) error {
	m.claimed.Add(ctx, 1, eventAttrs(ev))
	return nil
}

// OnEventCompleted implements hook.EventCompleted.
func (m *MetricsExtension) OnEventCompleted(ctx context.Context, ev *outbox.Event, elapsed time.Duration) error {
	m.completed.Add(ctx, 1, eventAttrs(ev))
	m.processDuration.Record(ctx, elapsed.Seconds(), eventAttrs(ev))
	return nil
}

// OnEventFailed implements hook.EventFailed.
func (m *MetricsExtension) OnEventFailed(ctx context.Context, ev *outbox.Event, _ error) error {
	m.failed.Add(ctx, 1, eventAttrs(ev))
	return nil
}

// OnEventRetrying implements hook.EventRetrying.
func (m *MetricsExtension) OnEventRetrying(ctx context.Context, ev *outbox.Event, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, eventAttrs(ev))
	return nil
}

// OnChannelDelivered implements hook.ChannelDelivered.
func (m *MetricsExtension) OnChannelDelivered(ctx context.Context, ev *outbox.Event, ch *channel.Channel, elapsed time.Duration) error {
	m.channelDelivered.Add(ctx, 1, channelAttrs(ev, ch))
	m.deliveryDuration.Record(ctx, elapsed.Seconds(), channelAttrs(ev, ch))
	return nil
}

// OnChannelFailed implements hook.ChannelFailed.
func (m *MetricsExtension) OnChannelFailed(ctx context.Context, ev *outbox.Event, ch *channel.Channel, _ error) error {
	m.channelFailed.Add(ctx, 1, channelAttrs(ev, ch))
	return nil
}
