// Package store defines the aggregate persistence interface. Each subsystem
// (outbox, channel) defines its own store interface. The composite Store
// composes them all. Backends: Postgres, Bun, Redis, and Memory.
package store

import (
	"context"

	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/outbox"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, bun, redis, memory) implements all of them.
type Store interface {
	outbox.Store
	channel.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
