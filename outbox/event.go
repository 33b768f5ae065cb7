// Package outbox defines the durable outbox event, its status state
// machine, and the persistence contract the dispatch loops claim work
// from. The outbox is the only shared mutable resource in relay: rows are
// appended by producers in the same store as the business data that
// produced them, then drained asynchronously by the dispatch loops.
package outbox

import (
	"strings"
	"time"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/id"
)

// Status represents the lifecycle status of an outbox event.
type Status string

const (
	// StatusPending means the event is waiting to be claimed by a
	// dispatch loop (or has been returned to the queue for retry).
	StatusPending Status = "pending"
	// StatusProcessing means a dispatch loop has claimed the event and is
	// currently working on it.
	StatusProcessing Status = "processing"
	// StatusCompleted means the event was delivered (or its job handler
	// succeeded). Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means the event will not be retried without an
	// operator replay. Terminal.
	StatusFailed Status = "failed"
)

// Type taxonomy. The Type column classifies an event for the dispatch
// loops; EventType is the logical name used purely for channel matching.
const (
	// TypePrefixEmail marks events delivered as templated email:
	// "email:<template>".
	TypePrefixEmail = "email:"
	// TypePrefixWebhook marks events delivered as an HTTP POST:
	// "webhook:<event>".
	TypePrefixWebhook = "webhook:"
	// TypeAlert is the legacy alert delivery: a webhook POST whose target
	// may be a Slack incoming webhook.
	TypeAlert = "webhook:alert"
	// TypeNotification is the generic marker for events that have no
	// legacy direct delivery and exist only for channel fan-out.
	TypeNotification = "notification"
)

// EmailType builds the outbox Type string for an email notification.
func EmailType(template string) string { return TypePrefixEmail + template }

// WebhookType builds the outbox Type string for a webhook notification.
func WebhookType(eventType string) string { return TypePrefixWebhook + eventType }

// Event is a single durable outbox row.
//
// An event is claimable only when Status is pending and AvailableAt is in
// the past. Attempts only increases; it is reset solely by an operator
// replay, which also returns the event to pending.
type Event struct {
	relay.Entity

	ID        id.EventID `json:"id"`
	Type      string     `json:"type"`
	EventType string     `json:"event_type,omitempty"`
	Payload   []byte     `json:"payload"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`

	// UserID and ProjectID scope channel fan-out. Either may be empty on
	// legacy rows; fan-out requires both UserID and EventType.
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`

	AvailableAt time.Time  `json:"available_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Claim filters which events a dispatch loop is willing to take.
// An event matches when its Type equals one of Types or starts with one
// of Prefixes. An empty Claim matches nothing: loops only ever claim the
// types they know how to handle, so unrecognized rows are left untouched
// for other consumers.
type Claim struct {
	Types    []string
	Prefixes []string
}

// Matches reports whether an event type satisfies the claim filter.
func (c Claim) Matches(eventType string) bool {
	for _, t := range c.Types {
		if eventType == t {
			return true
		}
	}
	for _, p := range c.Prefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}
