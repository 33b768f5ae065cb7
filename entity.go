package relay

import "time"

// Entity carries the timestamps shared by all persisted relay entities.
// Embed it in domain structs; NewEntity stamps both fields with the same
// UTC instant.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with CreatedAt and UpdatedAt set to now (UTC).
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// NewEntityAt returns an Entity stamped with the given instant. Used by
// callers that inject a clock for deterministic tests.
func NewEntityAt(now time.Time) Entity {
	now = now.UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates UpdatedAt to now (UTC).
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
