// Package relay provides a transactional outbox and multi-channel
// notification delivery engine for Go. Producers append events to a durable
// outbox; two scheduled dispatch loops drain it — a generic job loop for
// background work and a notification loop that fans events out to
// user-configured delivery channels (signed webhooks, Slack incoming
// webhooks, transactional email).
//
// Relay is designed as a library, not a service. Import it, configure a
// store, register job handlers, and invoke the dispatch loops from your
// scheduler (or use the built-in worker pool).
//
// # Quick Start
//
//	eng, err := engine.New(pgStore,
//	    engine.WithEmailSender(emailClient),
//	)
//
// # Architecture
//
// Relay follows a composable store pattern: the outbox and channel
// subsystems each define their own store interface, and a single backend
// (Postgres, Bun, Redis, or Memory) implements both. Delivery guarantees
// are at-least-once; consumers must tolerate duplicates.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package relay
