package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/outbox"
)

// claimPageSize is how many due members are examined per ZRANGEBYSCORE
// page while filtering for claimable types.
const claimPageSize = 64

// EnqueueEvent stores the event as a Hash and adds it to the due Sorted Set.
func (s *Store) EnqueueEvent(ctx context.Context, e *outbox.Event) error {
	eID := e.ID.String()
	key := eventKey(eID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("relay/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return relay.ErrEventAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, eventToMap(e))
	pipe.SAdd(ctx, eventIDsKey, eID)
	if e.Status == outbox.StatusPending {
		pipe.ZAdd(ctx, dueKey, goredis.Z{Score: dueScore(e.AvailableAt), Member: eID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay/redis: enqueue event: %w", err)
	}
	return nil
}

// ClaimEvents pops due events from the due set. Atomicity per event comes
// from ZREM: each member is removed by exactly one caller, and only the
// caller whose ZREM returns 1 takes the event. Members whose type does
// not satisfy the claim filter are left in place for other loops.
func (s *Store) ClaimEvents(ctx context.Context, claim outbox.Claim, limit int) ([]*outbox.Event, error) {
	if len(claim.Types) == 0 && len(claim.Prefixes) == 0 {
		return nil, nil
	}

	now := s.clock.Now().UTC()
	maxScore := strconv.FormatFloat(dueScore(now), 'f', -1, 64)

	var claimed []*outbox.Event
	offset := int64(0)
	for len(claimed) < limit {
		ids, err := s.client.ZRangeByScore(ctx, dueKey, &goredis.ZRangeBy{
			Min:    "-inf",
			Max:    maxScore,
			Offset: offset,
			Count:  claimPageSize,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("relay/redis: claim zrangebyscore: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, eID := range ids {
			if len(claimed) >= limit {
				break
			}

			typ, err := s.client.HGet(ctx, eventKey(eID), "type").Result()
			if err != nil {
				if errors.Is(err, goredis.Nil) {
					// Orphaned member; drop it.
					s.client.ZRem(ctx, dueKey, eID)
					continue
				}
				return nil, fmt.Errorf("relay/redis: claim get type: %w", err)
			}
			if !claim.Matches(typ) {
				offset++
				continue
			}

			removed, err := s.client.ZRem(ctx, dueKey, eID).Result()
			if err != nil {
				return nil, fmt.Errorf("relay/redis: claim zrem: %w", err)
			}
			if removed == 0 {
				// A concurrent claim won this member.
				continue
			}

			if err := s.client.HSet(ctx, eventKey(eID),
				"status", string(outbox.StatusProcessing),
				"updated_at", now.Format(time.RFC3339Nano),
			).Err(); err != nil {
				return nil, fmt.Errorf("relay/redis: claim update: %w", err)
			}

			e, getErr := s.getEventByKey(ctx, eventKey(eID))
			if getErr != nil {
				return nil, getErr
			}
			claimed = append(claimed, e)
		}

		if len(ids) < claimPageSize {
			break
		}
	}

	sort.Slice(claimed, func(i, j int) bool {
		return claimed[i].AvailableAt.Before(claimed[j].AvailableAt)
	})
	return claimed, nil
}

// CompleteEvent marks an event terminally completed.
func (s *Store) CompleteEvent(ctx context.Context, eventID id.EventID) error {
	key := eventKey(eventID.String())
	if err := s.requireEvent(ctx, key); err != nil {
		return err
	}

	now := s.clock.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(outbox.StatusCompleted),
		"processed_at", now,
		"updated_at", now,
	)
	pipe.ZRem(ctx, dueKey, eventID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay/redis: complete event: %w", err)
	}
	return nil
}

// RetryEvent returns a claimed event to the queue with its attempt counter
// bumped and a new due time.
func (s *Store) RetryEvent(ctx context.Context, eventID id.EventID, cause string, delay time.Duration) error {
	eID := eventID.String()
	key := eventKey(eID)
	if err := s.requireEvent(ctx, key); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	availableAt := now.Add(delay)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "attempts", 1)
	pipe.HSet(ctx, key,
		"status", string(outbox.StatusPending),
		"last_error", cause,
		"available_at", availableAt.Format(time.RFC3339Nano),
		"updated_at", now.Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, dueKey, goredis.Z{Score: dueScore(availableAt), Member: eID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay/redis: retry event: %w", err)
	}
	return nil
}

// FailEvent marks an event terminally failed.
func (s *Store) FailEvent(ctx context.Context, eventID id.EventID, cause string) error {
	eID := eventID.String()
	key := eventKey(eID)
	if err := s.requireEvent(ctx, key); err != nil {
		return err
	}

	now := s.clock.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(outbox.StatusFailed),
		"last_error", cause,
		"processed_at", now,
		"updated_at", now,
	)
	pipe.ZRem(ctx, dueKey, eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay/redis: fail event: %w", err)
	}
	return nil
}

// ReplayEvent resets a terminal event to pending with zero attempts.
func (s *Store) ReplayEvent(ctx context.Context, eventID id.EventID) error {
	eID := eventID.String()
	key := eventKey(eID)
	if err := s.requireEvent(ctx, key); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(outbox.StatusPending),
		"attempts", "0",
		"last_error", "",
		"available_at", now.Format(time.RFC3339Nano),
		"processed_at", "",
		"updated_at", now.Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, dueKey, goredis.Z{Score: dueScore(now), Member: eID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay/redis: replay event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*outbox.Event, error) {
	return s.getEventByKey(ctx, eventKey(eventID.String()))
}

// ListEventsByStatus returns events in the given status, oldest first.
func (s *Store) ListEventsByStatus(ctx context.Context, status outbox.Status, opts outbox.ListOpts) ([]*outbox.Event, error) {
	ids, err := s.client.SMembers(ctx, eventIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("relay/redis: list events smembers: %w", err)
	}

	events := make([]*outbox.Event, 0, len(ids))
	for _, eID := range ids {
		e, getErr := s.getEventByKey(ctx, eventKey(eID))
		if getErr != nil {
			continue // skip missing
		}
		if e.Status != status {
			continue
		}
		events = append(events, e)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(events) {
			return nil, nil
		}
		events = events[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(events) {
		events = events[:opts.Limit]
	}
	return events, nil
}

// CountEvents returns the number of events matching the given options.
func (s *Store) CountEvents(ctx context.Context, opts outbox.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, eventIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("relay/redis: count events smembers: %w", err)
	}

	var count int64
	for _, eID := range ids {
		e, getErr := s.getEventByKey(ctx, eventKey(eID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// dueScore is the Sorted Set score for an AvailableAt instant.
func dueScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *Store) requireEvent(ctx context.Context, key string) error {
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("relay/redis: check event exists: %w", err)
	}
	if exists == 0 {
		return relay.ErrEventNotFound
	}
	return nil
}

func eventToMap(e *outbox.Event) map[string]interface{} {
	m := map[string]interface{}{
		"id":           e.ID.String(),
		"type":         e.Type,
		"event_type":   e.EventType,
		"payload":      string(e.Payload),
		"status":       string(e.Status),
		"attempts":     strconv.Itoa(e.Attempts),
		"last_error":   e.LastError,
		"user_id":      e.UserID,
		"project_id":   e.ProjectID,
		"available_at": e.AvailableAt.Format(time.RFC3339Nano),
		"created_at":   e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if e.ProcessedAt != nil {
		m["processed_at"] = e.ProcessedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getEventByKey(ctx context.Context, key string) (*outbox.Event, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("relay/redis: get event: %w", err)
	}
	if len(vals) == 0 {
		return nil, relay.ErrEventNotFound
	}
	return mapToEvent(vals)
}

func mapToEvent(m map[string]string) (*outbox.Event, error) {
	eID, err := id.ParseEventID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("relay/redis: parse event id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])                          //nolint:errcheck // best-effort parse from trusted Redis data
	availableAt, _ := time.Parse(time.RFC3339Nano, m["available_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])       //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])       //nolint:errcheck // best-effort parse from trusted Redis data

	e := &outbox.Event{
		Entity: relay.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          eID,
		Type:        m["type"],
		EventType:   m["event_type"],
		Payload:     []byte(m["payload"]),
		Status:      outbox.Status(m["status"]),
		Attempts:    attempts,
		LastError:   m["last_error"],
		UserID:      m["user_id"],
		ProjectID:   m["project_id"],
		AvailableAt: availableAt,
	}

	if v := m["processed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ProcessedAt = &t
	}
	return e, nil
}
