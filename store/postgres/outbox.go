package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/outbox"
)

const eventColumns = `id, type, event_type, payload, status, attempts, last_error,
	user_id, project_id, available_at, processed_at, created_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// EnqueueEvent persists a new event in pending status.
func (s *Store) EnqueueEvent(ctx context.Context, e *outbox.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_events (
			id, type, event_type, payload, status, attempts, last_error,
			user_id, project_id, available_at, processed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13
		)`,
		e.ID.String(), e.Type, e.EventType, e.Payload, string(e.Status),
		e.Attempts, e.LastError,
		e.UserID, e.ProjectID, e.AvailableAt, e.ProcessedAt,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return relay.ErrEventAlreadyExists
		}
		return fmt.Errorf("relay/postgres: enqueue event: %w", err)
	}
	return nil
}

// ClaimEvents atomically claims up to limit due pending events whose type
// satisfies the claim filter. FOR UPDATE SKIP LOCKED makes concurrent
// claims disjoint: rows locked by another dispatcher replica are passed
// over, never waited on.
func (s *Store) ClaimEvents(ctx context.Context, claim outbox.Claim, limit int) ([]*outbox.Event, error) {
	if len(claim.Types) == 0 && len(claim.Prefixes) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE relay_events
			SET status = 'processing', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM relay_events
				WHERE status = 'pending'
				  AND available_at <= NOW()
				  AND (type = ANY($1) OR type LIKE ANY($2))
				ORDER BY available_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $3
			)
			RETURNING `+eventColumns+`
		)
		SELECT * FROM claimed ORDER BY available_at ASC`,
		claim.Types, likePatterns(claim.Prefixes), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: claim events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// CompleteEvent marks an event terminally completed.
func (s *Store) CompleteEvent(ctx context.Context, eventID id.EventID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE relay_events
		SET status = 'completed', processed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		eventID.String(),
	)
	if err != nil {
		return fmt.Errorf("relay/postgres: complete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// RetryEvent returns a claimed event to the queue with its attempt
// counter bumped and AvailableAt pushed forward by delay.
func (s *Store) RetryEvent(ctx context.Context, eventID id.EventID, cause string, delay time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE relay_events
		SET status = 'pending',
		    attempts = attempts + 1,
		    last_error = $2,
		    available_at = NOW() + make_interval(secs => $3),
		    updated_at = NOW()
		WHERE id = $1`,
		eventID.String(), cause, delay.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("relay/postgres: retry event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// FailEvent marks an event terminally failed.
func (s *Store) FailEvent(ctx context.Context, eventID id.EventID, cause string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE relay_events
		SET status = 'failed', last_error = $2, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		eventID.String(), cause,
	)
	if err != nil {
		return fmt.Errorf("relay/postgres: fail event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// ReplayEvent resets a terminal event to pending with zero attempts.
func (s *Store) ReplayEvent(ctx context.Context, eventID id.EventID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE relay_events
		SET status = 'pending',
		    attempts = 0,
		    last_error = '',
		    available_at = NOW(),
		    processed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1`,
		eventID.String(),
	)
	if err != nil {
		return fmt.Errorf("relay/postgres: replay event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*outbox.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM relay_events WHERE id = $1`,
		eventID.String(),
	)

	e, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, relay.ErrEventNotFound
		}
		return nil, fmt.Errorf("relay/postgres: get event: %w", err)
	}
	return e, nil
}

// ListEventsByStatus returns events in the given status, oldest first.
func (s *Store) ListEventsByStatus(ctx context.Context, status outbox.Status, opts outbox.ListOpts) ([]*outbox.Event, error) {
	b := psql.Select(eventColumns).
		From("relay_events").
		Where(sq.Eq{"status": string(status)}).
		OrderBy("created_at ASC")
	if opts.Limit > 0 {
		b = b.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		b = b.Offset(uint64(opts.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: build list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: list events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// CountEvents returns the number of events matching the given options.
func (s *Store) CountEvents(ctx context.Context, opts outbox.CountOpts) (int64, error) {
	b := psql.Select("COUNT(*)").From("relay_events")
	if opts.Status != "" {
		b = b.Where(sq.Eq{"status": string(opts.Status)})
	}
	if opts.Type != "" {
		b = b.Where(sq.Eq{"type": opts.Type})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("relay/postgres: build count query: %w", err)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("relay/postgres: count events: %w", err)
	}
	return count, nil
}

func scanEvent(row pgx.Row) (*outbox.Event, error) {
	var (
		e         outbox.Event
		idStr     string
		statusStr string
	)
	err := row.Scan(
		&idStr, &e.Type, &e.EventType, &e.Payload, &statusStr,
		&e.Attempts, &e.LastError,
		&e.UserID, &e.ProjectID, &e.AvailableAt, &e.ProcessedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = outbox.Status(statusStr)

	parsedID, parseErr := id.ParseEventID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("relay/postgres: parse event id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*outbox.Event, error) {
	var events []*outbox.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("relay/postgres: scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay/postgres: iterate event rows: %w", err)
	}
	return events, nil
}
