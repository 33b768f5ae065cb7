package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/outbox"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ outbox.Store  = (*Store)(nil)
	_ channel.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	events   map[string]*outbox.Event
	channels map[string]*channel.Channel

	clock clockwork.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for due-time comparisons and timestamps.
// Tests inject a fake to control retry scheduling.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		events:   make(map[string]*outbox.Event),
		channels: make(map[string]*channel.Channel),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Outbox Store
// ──────────────────────────────────────────────────

// EnqueueEvent persists a new event in pending status.
func (m *Store) EnqueueEvent(_ context.Context, e *outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, exists := m.events[key]; exists {
		return relay.ErrEventAlreadyExists
	}
	cp := *e
	m.events[key] = &cp
	return nil
}

// ClaimEvents atomically claims up to limit due pending events matching the
// claim filter, sets them to processing, and returns them oldest-due first.
// The whole operation holds the write lock, so two concurrent claims can
// never return the same event.
func (m *Store) ClaimEvents(_ context.Context, claim outbox.Claim, limit int) ([]*outbox.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now().UTC()

	candidates := make([]*outbox.Event, 0, len(m.events))
	for _, e := range m.events {
		if e.Status != outbox.StatusPending {
			continue
		}
		if e.AvailableAt.After(now) {
			continue
		}
		if !claim.Matches(e.Type) {
			continue
		}
		candidates = append(candidates, e)
	}

	// Oldest due first.
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].AvailableAt.Before(candidates[k].AvailableAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*outbox.Event, len(candidates))
	for i, e := range candidates {
		e.Status = outbox.StatusProcessing
		e.UpdatedAt = now
		// Return a copy so callers can mutate without racing with the store.
		cp := *e
		result[i] = &cp
	}

	return result, nil
}

// CompleteEvent marks an event terminally completed.
func (m *Store) CompleteEvent(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return relay.ErrEventNotFound
	}
	now := m.clock.Now().UTC()
	e.Status = outbox.StatusCompleted
	e.ProcessedAt = &now
	e.UpdatedAt = now
	return nil
}

// RetryEvent returns a claimed event to the queue with an incremented
// attempt counter and a pushed-forward due time.
func (m *Store) RetryEvent(_ context.Context, eventID id.EventID, cause string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return relay.ErrEventNotFound
	}
	now := m.clock.Now().UTC()
	e.Status = outbox.StatusPending
	e.Attempts++
	e.LastError = cause
	e.AvailableAt = now.Add(delay)
	e.UpdatedAt = now
	return nil
}

// FailEvent marks an event terminally failed.
func (m *Store) FailEvent(_ context.Context, eventID id.EventID, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return relay.ErrEventNotFound
	}
	now := m.clock.Now().UTC()
	e.Status = outbox.StatusFailed
	e.LastError = cause
	e.ProcessedAt = &now
	e.UpdatedAt = now
	return nil
}

// ReplayEvent returns a terminal event to pending with zero attempts.
func (m *Store) ReplayEvent(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return relay.ErrEventNotFound
	}
	now := m.clock.Now().UTC()
	e.Status = outbox.StatusPending
	e.Attempts = 0
	e.LastError = ""
	e.AvailableAt = now
	e.ProcessedAt = nil
	e.UpdatedAt = now
	return nil
}

// GetEvent retrieves an event by ID.
func (m *Store) GetEvent(_ context.Context, eventID id.EventID) (*outbox.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[eventID.String()]
	if !ok {
		return nil, relay.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

// ListEventsByStatus returns events matching the given status, oldest first.
func (m *Store) ListEventsByStatus(_ context.Context, status outbox.Status, opts outbox.ListOpts) ([]*outbox.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*outbox.Event, 0, len(m.events))
	for _, e := range m.events {
		if e.Status != status {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountEvents returns the number of events matching the given options.
func (m *Store) CountEvents(_ context.Context, opts outbox.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, e := range m.events {
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

// ──────────────────────────────────────────────────
// Channel Store
// ──────────────────────────────────────────────────

// CreateChannel persists a new channel.
func (m *Store) CreateChannel(_ context.Context, c *channel.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.ID.String()
	if _, exists := m.channels[key]; exists {
		return relay.ErrChannelAlreadyExists
	}
	cp := cloneChannel(c)
	m.channels[key] = cp
	return nil
}

// GetChannel retrieves a channel by ID.
func (m *Store) GetChannel(_ context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.channels[channelID.String()]
	if !ok {
		return nil, relay.ErrChannelNotFound
	}
	return cloneChannel(c), nil
}

// UpdateChannel persists changes to an existing channel.
func (m *Store) UpdateChannel(_ context.Context, c *channel.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.ID.String()
	if _, ok := m.channels[key]; !ok {
		return relay.ErrChannelNotFound
	}
	cp := cloneChannel(c)
	cp.UpdatedAt = m.clock.Now().UTC()
	m.channels[key] = cp
	return nil
}

// DeleteChannel removes a channel by ID.
func (m *Store) DeleteChannel(_ context.Context, channelID id.ChannelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := channelID.String()
	if _, ok := m.channels[key]; !ok {
		return relay.ErrChannelNotFound
	}
	delete(m.channels, key)
	return nil
}

// ListChannelsByUser returns all channels owned by a user, oldest first.
func (m *Store) ListChannelsByUser(_ context.Context, userID string) ([]*channel.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*channel.Channel, 0, len(m.channels))
	for _, c := range m.channels {
		if c.UserID != userID {
			continue
		}
		result = append(result, cloneChannel(c))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// CountChannelsByUser returns the number of channels owned by a user.
func (m *Store) CountChannelsByUser(_ context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, c := range m.channels {
		if c.UserID == userID {
			count++
		}
	}
	return count, nil
}

// MatchChannels returns the enabled channels of a user that subscribe to
// the given event type and cover the given project.
func (m *Store) MatchChannels(_ context.Context, userID, eventType, projectID string) ([]*channel.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*channel.Channel, 0, 4)
	for _, c := range m.channels {
		if !c.Enabled || c.UserID != userID {
			continue
		}
		if !c.Subscribed(eventType) || !c.AppliesTo(projectID) {
			continue
		}
		result = append(result, cloneChannel(c))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// cloneChannel deep-copies a channel so callers never share the store's
// Config map or EventTypes slice.
func cloneChannel(c *channel.Channel) *channel.Channel {
	cp := *c
	if c.Config != nil {
		cp.Config = make(map[string]string, len(c.Config))
		for k, v := range c.Config {
			cp.Config[k] = v
		}
	}
	if c.EventTypes != nil {
		cp.EventTypes = append([]string(nil), c.EventTypes...)
	}
	return &cp
}
