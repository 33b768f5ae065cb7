// Package hook defines the extension system for relay.
// Extensions are notified of lifecycle events (event enqueued, completed,
// failed, channel deliveries, etc.) and can react to them — logging,
// metrics, alerting, audit trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/outbox"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Event lifecycle hooks
// ──────────────────────────────────────────────────

// EventEnqueued is called after an event is successfully enqueued.
type EventEnqueued interface {
	OnEventEnqueued(ctx context.Context, ev *outbox.Event) error
}

// EventClaimed is called when a dispatch loop claims an event for processing.
type EventClaimed interface {
	OnEventClaimed(ctx context.Context, ev *outbox.Event) error
}

// EventCompleted is called after an event is processed successfully.
type EventCompleted interface {
	OnEventCompleted(ctx context.Context, ev *outbox.Event, elapsed time.Duration) error
}

// EventFailed is called when an event fails terminally.
type EventFailed interface {
	OnEventFailed(ctx context.Context, ev *outbox.Event, err error) error
}

// EventRetrying is called when an event fails but is rescheduled for retry.
type EventRetrying interface {
	OnEventRetrying(ctx context.Context, ev *outbox.Event, attempt int, nextAt time.Time) error
}

// ──────────────────────────────────────────────────
// Channel delivery hooks
// ──────────────────────────────────────────────────

// ChannelDelivered is called after a notification is delivered to a channel.
type ChannelDelivered interface {
	OnChannelDelivered(ctx context.Context, ev *outbox.Event, ch *channel.Channel, elapsed time.Duration) error
}

// ChannelFailed is called when delivery to a single channel fails.
type ChannelFailed interface {
	OnChannelFailed(ctx context.Context, ev *outbox.Event, ch *channel.Channel, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
