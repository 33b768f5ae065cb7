package relay

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("relay: no store configured")
	ErrStoreClosed     = errors.New("relay: store closed")
	ErrMigrationFailed = errors.New("relay: migration failed")

	// Not found errors.
	ErrEventNotFound   = errors.New("relay: event not found")
	ErrChannelNotFound = errors.New("relay: channel not found")

	// Conflict errors.
	ErrEventAlreadyExists   = errors.New("relay: event already exists")
	ErrChannelAlreadyExists = errors.New("relay: channel already exists")

	// State errors.
	ErrInvalidState  = errors.New("relay: invalid status transition")
	ErrUnknownKind   = errors.New("relay: unknown job kind")
	ErrNoEmailSender = errors.New("relay: no email sender configured")

	// Registry business-rule errors. Both are plan violations and are
	// distinguishable from system failures: never retried, never logged
	// as errors.
	ErrPlanLimit       = errors.New("relay: plan limit reached")
	ErrNotChannelOwner = errors.New("relay: channel owned by another user")
)
