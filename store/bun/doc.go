// Package bunstore implements store.Store on the Bun ORM with the
// PostgreSQL dialect. It offers the same semantics as the pgx store for
// applications that already run their persistence through Bun and want
// relay rows enqueued inside their existing transactions.
package bunstore
