package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/id"
)

// DeliveryPayload is the JSON document stored in Event.Payload for
// notification-typed events. To is set for email deliveries, URL for
// webhook and alert deliveries; Data carries the event-specific fields.
type DeliveryPayload struct {
	To   string         `json:"to,omitempty"`
	URL  string         `json:"url,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// EmailNotification describes an email-delivered event to enqueue.
type EmailNotification struct {
	UserID    string
	ProjectID string
	// EventType is the logical event name ("crawl_completed", "score_drop")
	// used both as the email template name and for channel matching.
	EventType string
	To        string
	Data      map[string]any
}

// WebhookNotification describes a webhook-delivered event to enqueue.
type WebhookNotification struct {
	UserID    string
	ProjectID string
	EventType string
	URL       string
	Data      map[string]any
}

// Notification describes a fan-out-only event: no legacy direct delivery,
// just channel routing by EventType.
type Notification struct {
	UserID    string
	ProjectID string
	EventType string
	Data      map[string]any
}

// EnqueueOption customizes a produced event.
type EnqueueOption func(*Event)

// WithAvailableAt schedules the event for a future tick instead of
// immediate eligibility.
func WithAvailableAt(t time.Time) EnqueueOption {
	return func(e *Event) { e.AvailableAt = t.UTC() }
}

// Producer is the write side of the outbox: the API business logic calls
// when a domain event occurs. It only inserts rows; delivery is the
// dispatch loops' job.
type Producer struct {
	store  Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithClock sets the clock used for AvailableAt defaults and timestamps.
func WithClock(c clockwork.Clock) ProducerOption {
	return func(p *Producer) { p.clock = c }
}

// WithLogger sets the producer's logger.
func WithLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) { p.logger = l }
}

// NewProducer creates a Producer over the given store.
func NewProducer(store Store, opts ...ProducerOption) *Producer {
	p := &Producer{
		store:  store,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnqueueEmail inserts a pending "email:<eventType>" event.
func (p *Producer) EnqueueEmail(ctx context.Context, n EmailNotification, opts ...EnqueueOption) (*Event, error) {
	payload, err := json.Marshal(DeliveryPayload{To: n.To, Data: n.Data})
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal email payload: %w", err)
	}
	return p.enqueue(ctx, EmailType(n.EventType), n.EventType, n.UserID, n.ProjectID, payload, opts)
}

// EnqueueWebhook inserts a pending "webhook:<eventType>" event.
func (p *Producer) EnqueueWebhook(ctx context.Context, n WebhookNotification, opts ...EnqueueOption) (*Event, error) {
	payload, err := json.Marshal(DeliveryPayload{URL: n.URL, Data: n.Data})
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal webhook payload: %w", err)
	}
	return p.enqueue(ctx, WebhookType(n.EventType), n.EventType, n.UserID, n.ProjectID, payload, opts)
}

// EnqueueAlert inserts a pending "webhook:alert" event. The target URL may
// be a Slack incoming webhook; the notification loop detects that at
// delivery time.
func (p *Producer) EnqueueAlert(ctx context.Context, n WebhookNotification, opts ...EnqueueOption) (*Event, error) {
	payload, err := json.Marshal(DeliveryPayload{URL: n.URL, Data: n.Data})
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal alert payload: %w", err)
	}
	return p.enqueue(ctx, TypeAlert, n.EventType, n.UserID, n.ProjectID, payload, opts)
}

// EnqueueNotification inserts a pending fan-out-only event.
func (p *Producer) EnqueueNotification(ctx context.Context, n Notification, opts ...EnqueueOption) (*Event, error) {
	payload, err := json.Marshal(DeliveryPayload{Data: n.Data})
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal notification payload: %w", err)
	}
	return p.enqueue(ctx, TypeNotification, n.EventType, n.UserID, n.ProjectID, payload, opts)
}

// EnqueueJob inserts a pending background-job event. The kind string must
// belong to the job loop's closed allow-list; callers go through
// engine.EnqueueJob which enforces that at compile time via job.Kind.
func (p *Producer) EnqueueJob(ctx context.Context, kind string, payload any, opts ...EnqueueOption) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal job payload for %q: %w", kind, err)
	}
	return p.enqueue(ctx, kind, "", "", "", data, opts)
}

// Replay is the operator action that returns a terminal event to the
// pending queue with zero attempts.
func (p *Producer) Replay(ctx context.Context, eventID id.EventID) error {
	if err := p.store.ReplayEvent(ctx, eventID); err != nil {
		return err
	}
	p.logger.Info("event replayed", slog.String("event_id", eventID.String()))
	return nil
}

func (p *Producer) enqueue(ctx context.Context, typ, eventType, userID, projectID string, payload []byte, opts []EnqueueOption) (*Event, error) {
	now := p.clock.Now().UTC()
	e := &Event{
		Entity:      relay.NewEntityAt(now),
		ID:          id.NewEventID(),
		Type:        typ,
		EventType:   eventType,
		Payload:     payload,
		Status:      StatusPending,
		UserID:      userID,
		ProjectID:   projectID,
		AvailableAt: now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := p.store.EnqueueEvent(ctx, e); err != nil {
		return nil, err
	}

	p.logger.Debug("event enqueued",
		slog.String("event_id", e.ID.String()),
		slog.String("type", e.Type),
		slog.String("event_type", e.EventType),
	)
	return e, nil
}
