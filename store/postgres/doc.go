// Package postgres implements store.Store on PostgreSQL using pgx/v5.
// Event claims rely on FOR UPDATE SKIP LOCKED so concurrent dispatcher
// replicas never hand out the same row twice.
package postgres
