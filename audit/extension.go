package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/hook"
	"github.com/lsendel/relay/outbox"
)

// Compile-time interface checks.
var (
	_ hook.Extension        = (*Extension)(nil)
	_ hook.EventEnqueued    = (*Extension)(nil)
	_ hook.EventClaimed     = (*Extension)(nil)
	_ hook.EventCompleted   = (*Extension)(nil)
	_ hook.EventFailed      = (*Extension)(nil)
	_ hook.EventRetrying    = (*Extension)(nil)
	_ hook.ChannelDelivered = (*Extension)(nil)
	_ hook.ChannelFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package does not import any trail backend —
// callers inject the concrete implementation at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is the structured audit record emitted for each lifecycle hook.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges relay lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit" }

// ── Event lifecycle hooks ───────────────────────────

// OnEventEnqueued implements hook.EventEnqueued.
func (e *Extension) OnEventEnqueued(ctx context.Context, ev *outbox.Event) error {
	return e.record(ctx, ActionEventEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceEvent, ev.ID.String(), CategoryOutbox, nil,
		"type", ev.Type,
		"event_type", ev.EventType,
	)
}

// OnEventClaimed implements hook.EventClaimed.
func (e *Extension) OnEventClaimed(ctx context.Context, ev *outbox.Event) error {
	return e.record(ctx, ActionEventClaimed, SeverityInfo, OutcomeSuccess,
		ResourceEvent, ev.ID.String(), CategoryOutbox, nil,
		"type", ev.Type,
		"attempts", ev.Attempts,
	)
}

// OnEventCompleted implements hook.EventCompleted.
func (e *Extension) OnEventCompleted(ctx context.Context, ev *outbox.Event, elapsed time.Duration) error {
	return e.record(ctx, ActionEventCompleted, SeverityInfo, OutcomeSuccess,
		ResourceEvent, ev.ID.String(), CategoryOutbox, nil,
		"type", ev.Type,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnEventFailed implements hook.EventFailed.
func (e *Extension) OnEventFailed(ctx context.Context, ev *outbox.Event, evErr error) error {
	return e.record(ctx, ActionEventFailed, SeverityCritical, OutcomeFailure,
		ResourceEvent, ev.ID.String(), CategoryOutbox, evErr,
		"type", ev.Type,
		"attempts", ev.Attempts,
	)
}

// OnEventRetrying implements hook.EventRetrying.
func (e *Extension) OnEventRetrying(ctx context.Context, ev *outbox.Event, attempt int, nextAt time.Time) error {
	return e.record(ctx, ActionEventRetrying, SeverityWarning, OutcomeFailure,
		ResourceEvent, ev.ID.String(), CategoryOutbox, nil,
		"type", ev.Type,
		"attempt", attempt,
		"next_at", nextAt.Format(time.RFC3339),
	)
}

// ── Channel delivery hooks ──────────────────────────

// OnChannelDelivered implements hook.ChannelDelivered.
func (e *Extension) OnChannelDelivered(ctx context.Context, ev *outbox.Event, ch *channel.Channel, elapsed time.Duration) error {
	return e.record(ctx, ActionChannelDelivered, SeverityInfo, OutcomeSuccess,
		ResourceChannel, ch.ID.String(), CategoryDelivery, nil,
		"event_id", ev.ID.String(),
		"channel_type", string(ch.Type),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnChannelFailed implements hook.ChannelFailed.
func (e *Extension) OnChannelFailed(ctx context.Context, ev *outbox.Event, ch *channel.Channel, chErr error) error {
	return e.record(ctx, ActionChannelFailed, SeverityWarning, OutcomeFailure,
		ResourceChannel, ch.ID.String(), CategoryDelivery, chErr,
		"event_id", ev.ID.String(),
		"channel_type", string(ch.Type),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
