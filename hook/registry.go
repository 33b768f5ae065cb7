package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/outbox"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type eventEnqueuedEntry struct {
	name string
	hook EventEnqueued
}

type eventClaimedEntry struct {
	name string
	hook EventClaimed
}

type eventCompletedEntry struct {
	name string
	hook EventCompleted
}

type eventFailedEntry struct {
	name string
	hook EventFailed
}

type eventRetryingEntry struct {
	name string
	hook EventRetrying
}

type channelDeliveredEntry struct {
	name string
	hook ChannelDelivered
}

type channelFailedEntry struct {
	name string
	hook ChannelFailed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	eventEnqueued    []eventEnqueuedEntry
	eventClaimed     []eventClaimedEntry
	eventCompleted   []eventCompletedEntry
	eventFailed      []eventFailedEntry
	eventRetrying    []eventRetryingEntry
	channelDelivered []channelDeliveredEntry
	channelFailed    []channelFailedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(EventEnqueued); ok {
		r.eventEnqueued = append(r.eventEnqueued, eventEnqueuedEntry{name, h})
	}
	if h, ok := e.(EventClaimed); ok {
		r.eventClaimed = append(r.eventClaimed, eventClaimedEntry{name, h})
	}
	if h, ok := e.(EventCompleted); ok {
		r.eventCompleted = append(r.eventCompleted, eventCompletedEntry{name, h})
	}
	if h, ok := e.(EventFailed); ok {
		r.eventFailed = append(r.eventFailed, eventFailedEntry{name, h})
	}
	if h, ok := e.(EventRetrying); ok {
		r.eventRetrying = append(r.eventRetrying, eventRetryingEntry{name, h})
	}
	if h, ok := e.(ChannelDelivered); ok {
		r.channelDelivered = append(r.channelDelivered, channelDeliveredEntry{name, h})
	}
	if h, ok := e.(ChannelFailed); ok {
		r.channelFailed = append(r.channelFailed, channelFailedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitEventEnqueued notifies all extensions that implement EventEnqueued.
func (r *Registry) EmitEventEnqueued(ctx context.Context, ev *outbox.Event) {
	for _, e := range r.eventEnqueued {
		if err := e.hook.OnEventEnqueued(ctx, ev); err != nil {
			r.logHookError("OnEventEnqueued", e.name, err)
		}
	}
}

// EmitEventClaimed notifies all extensions that implement EventClaimed.
func (r *Registry) EmitEventClaimed(ctx context.Context, ev *outbox.Event) {
	for _, e := range r.eventClaimed {
		if err := e.hook.OnEventClaimed(ctx, ev); err != nil {
			r.logHookError("OnEventClaimed", e.name, err)
		}
	}
}

// EmitEventCompleted notifies all extensions that implement EventCompleted.
func (r *Registry) EmitEventCompleted(ctx context.Context, ev *outbox.Event, elapsed time.Duration) {
	for _, e := range r.eventCompleted {
		if err := e.hook.OnEventCompleted(ctx, ev, elapsed); err != nil {
			r.logHookError("OnEventCompleted", e.name, err)
		}
	}
}

// EmitEventFailed notifies all extensions that implement EventFailed.
func (r *Registry) EmitEventFailed(ctx context.Context, ev *outbox.Event, evErr error) {
	for _, e := range r.eventFailed {
		if err := e.hook.OnEventFailed(ctx, ev, evErr); err != nil {
			r.logHookError("OnEventFailed", e.name, err)
		}
	}
}

// EmitEventRetrying notifies all extensions that implement EventRetrying.
func (r *Registry) EmitEventRetrying(ctx context.Context, ev *outbox.Event, attempt int, nextAt time.Time) {
	for _, e := range r.eventRetrying {
		if err := e.hook.OnEventRetrying(ctx, ev, attempt, nextAt); err != nil {
			r.logHookError("OnEventRetrying", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Channel delivery emitters
// ──────────────────────────────────────────────────

// EmitChannelDelivered notifies all extensions that implement ChannelDelivered.
func (r *Registry) EmitChannelDelivered(ctx context.Context, ev *outbox.Event, ch *channel.Channel, elapsed time.Duration) {
	for _, e := range r.channelDelivered {
		if err := e.hook.OnChannelDelivered(ctx, ev, ch, elapsed); err != nil {
			r.logHookError("OnChannelDelivered", e.name, err)
		}
	}
}

// EmitChannelFailed notifies all extensions that implement ChannelFailed.
func (r *Registry) EmitChannelFailed(ctx context.Context, ev *outbox.Event, ch *channel.Channel, chErr error) {
	for _, e := range r.channelFailed {
		if err := e.hook.OnChannelFailed(ctx, ev, ch, chErr); err != nil {
			r.logHookError("OnChannelFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
