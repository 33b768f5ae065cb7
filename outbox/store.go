package outbox

import (
	"context"
	"time"

	"github.com/lsendel/relay/id"
)

// ListOpts controls pagination for event list queries.
type ListOpts struct {
	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
	// Offset is the number of events to skip.
	Offset int
}

// CountOpts controls filtering for event count queries.
type CountOpts struct {
	// Status filters by event status. Empty means all statuses.
	Status Status
	// Type filters by exact event type. Empty means all types.
	Type string
}

// Store defines the persistence contract for outbox events.
//
// ClaimEvents is the only correctness-critical primitive: it must prevent
// two concurrent dispatcher invocations from claiming the same row. Every
// other operation is a plain keyed write.
type Store interface {
	// EnqueueEvent persists a new event in pending status.
	EnqueueEvent(ctx context.Context, e *Event) error

	// ClaimEvents atomically selects up to limit pending, due events whose
	// Type satisfies the claim filter, transitions them to processing
	// within the same operation, and returns them ordered by AvailableAt
	// ascending. Rows locked by a concurrent claim are skipped, never
	// blocked on.
	ClaimEvents(ctx context.Context, claim Claim, limit int) ([]*Event, error)

	// CompleteEvent marks an event terminally completed and stamps
	// ProcessedAt.
	CompleteEvent(ctx context.Context, eventID id.EventID) error

	// RetryEvent returns a claimed event to the queue: increments
	// Attempts, records the failure cause, and sets AvailableAt to
	// now+delay. A zero delay makes the event immediately re-claimable.
	RetryEvent(ctx context.Context, eventID id.EventID, cause string, delay time.Duration) error

	// FailEvent marks an event terminally failed. It stays in the outbox
	// for inspection and requires ReplayEvent to re-enter the queue.
	FailEvent(ctx context.Context, eventID id.EventID, cause string) error

	// ReplayEvent is the operator action that returns a terminal event to
	// pending with zero attempts and immediate eligibility.
	ReplayEvent(ctx context.Context, eventID id.EventID) error

	// GetEvent retrieves an event by ID.
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)

	// ListEventsByStatus returns events matching the given status, oldest
	// first.
	ListEventsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Event, error)

	// CountEvents returns the number of events matching the given options.
	CountEvents(ctx context.Context, opts CountOpts) (int64, error)
}
