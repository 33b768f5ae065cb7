// Package redis implements store.Store on Redis for deployments without
// a relational database. Events and channels are stored as Hashes; the
// claimable queue is a Sorted Set scored by AvailableAt, and claim
// atomicity comes from ZREM: the dispatcher that removes the member owns
// the event.
package redis

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/outbox"
)

var (
	_ outbox.Store  = (*Store)(nil)
	_ channel.Store = (*Store)(nil)
)

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used for due-time scoring. Tests inject a fake.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
