package channel

import (
	"context"

	"github.com/lsendel/relay/id"
)

// Store defines the persistence contract for notification channels.
//
// Channel reads are not locked: a channel edited while a fan-out is in
// flight may or may not be observed by that dispatch. Last write wins; no
// transactional isolation is required. Deleting or disabling a channel
// never affects events that have already been claimed.
type Store interface {
	// CreateChannel persists a new channel.
	CreateChannel(ctx context.Context, c *Channel) error

	// GetChannel retrieves a channel by ID.
	GetChannel(ctx context.Context, channelID id.ChannelID) (*Channel, error)

	// UpdateChannel persists changes to an existing channel.
	UpdateChannel(ctx context.Context, c *Channel) error

	// DeleteChannel removes a channel by ID.
	DeleteChannel(ctx context.Context, channelID id.ChannelID) error

	// ListChannelsByUser returns all channels owned by the user, newest
	// first.
	ListChannelsByUser(ctx context.Context, userID string) ([]*Channel, error)

	// CountChannelsByUser returns the number of channels owned by the
	// user, independent of the enabled flag.
	CountChannelsByUser(ctx context.Context, userID string) (int64, error)

	// MatchChannels resolves fan-out targets: every enabled channel owned
	// by userID that subscribes to eventType and whose project scope is
	// unset or equals projectID.
	MatchChannels(ctx context.Context, userID, eventType, projectID string) ([]*Channel, error)
}
