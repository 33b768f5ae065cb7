package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/outbox"
)

// EnqueueEvent persists a new event in pending status.
func (s *Store) EnqueueEvent(ctx context.Context, e *outbox.Event) error {
	m := toEventModel(e)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return relay.ErrEventAlreadyExists
		}
		return fmt.Errorf("relay/bun: enqueue event: %w", err)
	}
	return nil
}

// ClaimEvents atomically claims up to limit due pending events whose type
// satisfies the claim filter, via FOR UPDATE SKIP LOCKED raw SQL.
func (s *Store) ClaimEvents(ctx context.Context, claim outbox.Claim, limit int) ([]*outbox.Event, error) {
	if len(claim.Types) == 0 && len(claim.Prefixes) == 0 {
		return nil, nil
	}

	var models []eventModel
	_, err := s.db.NewRaw(`
		WITH claimed AS (
			UPDATE relay_events
			SET status = 'processing', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM relay_events
				WHERE status = 'pending'
				  AND available_at <= NOW()
				  AND (type = ANY(?0) OR type LIKE ANY(?1))
				ORDER BY available_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?2
			)
			RETURNING *
		)
		SELECT * FROM claimed ORDER BY available_at ASC`,
		pgdialect.Array(claim.Types), pgdialect.Array(likePatterns(claim.Prefixes)), limit,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("relay/bun: claim events: %w", err)
	}

	events := make([]*outbox.Event, 0, len(models))
	for i := range models {
		e, convErr := fromEventModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("relay/bun: claim convert: %w", convErr)
		}
		events = append(events, e)
	}
	return events, nil
}

// CompleteEvent marks an event terminally completed.
func (s *Store) CompleteEvent(ctx context.Context, eventID id.EventID) error {
	res, err := s.db.NewUpdate().
		TableExpr("relay_events").
		Set("status = 'completed'").
		Set("processed_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", eventID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/bun: complete event: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// RetryEvent returns a claimed event to the queue with its attempt counter
// bumped and AvailableAt pushed forward by delay.
func (s *Store) RetryEvent(ctx context.Context, eventID id.EventID, cause string, delay time.Duration) error {
	res, err := s.db.NewUpdate().
		TableExpr("relay_events").
		Set("status = 'pending'").
		Set("attempts = attempts + 1").
		Set("last_error = ?", cause).
		Set("available_at = NOW() + make_interval(secs => ?)", delay.Seconds()).
		Set("updated_at = NOW()").
		Where("id = ?", eventID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/bun: retry event: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// FailEvent marks an event terminally failed.
func (s *Store) FailEvent(ctx context.Context, eventID id.EventID, cause string) error {
	res, err := s.db.NewUpdate().
		TableExpr("relay_events").
		Set("status = 'failed'").
		Set("last_error = ?", cause).
		Set("processed_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", eventID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/bun: fail event: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// ReplayEvent resets a terminal event to pending with zero attempts.
func (s *Store) ReplayEvent(ctx context.Context, eventID id.EventID) error {
	res, err := s.db.NewUpdate().
		TableExpr("relay_events").
		Set("status = 'pending'").
		Set("attempts = 0").
		Set("last_error = ''").
		Set("available_at = NOW()").
		Set("processed_at = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", eventID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/bun: replay event: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*outbox.Event, error) {
	m := new(eventModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", eventID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, relay.ErrEventNotFound
		}
		return nil, fmt.Errorf("relay/bun: get event: %w", err)
	}
	return fromEventModel(m)
}

// ListEventsByStatus returns events in the given status, oldest first.
func (s *Store) ListEventsByStatus(ctx context.Context, status outbox.Status, opts outbox.ListOpts) ([]*outbox.Event, error) {
	var models []eventModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(status)).
		Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("relay/bun: list events: %w", err)
	}

	events := make([]*outbox.Event, 0, len(models))
	for i := range models {
		e, convErr := fromEventModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("relay/bun: list convert: %w", convErr)
		}
		events = append(events, e)
	}
	return events, nil
}

// CountEvents returns the number of events matching the given options.
func (s *Store) CountEvents(ctx context.Context, opts outbox.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("relay_events")

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("relay/bun: count events: %w", err)
	}
	return int64(count), nil
}
