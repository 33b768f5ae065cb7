package bunstore

import (
	"context"
	"fmt"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/id"
)

// CreateChannel persists a new channel.
func (s *Store) CreateChannel(ctx context.Context, c *channel.Channel) error {
	m := toChannelModel(c)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return relay.ErrChannelAlreadyExists
		}
		return fmt.Errorf("relay/bun: create channel: %w", err)
	}
	return nil
}

// GetChannel retrieves a channel by ID.
func (s *Store) GetChannel(ctx context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	m := new(channelModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", channelID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, relay.ErrChannelNotFound
		}
		return nil, fmt.Errorf("relay/bun: get channel: %w", err)
	}
	return fromChannelModel(m)
}

// UpdateChannel persists changes to an existing channel.
func (s *Store) UpdateChannel(ctx context.Context, c *channel.Channel) error {
	m := toChannelModel(c)
	res, err := s.db.NewUpdate().Model(m).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/bun: update channel: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return relay.ErrChannelNotFound
	}
	return nil
}

// DeleteChannel removes a channel by ID.
func (s *Store) DeleteChannel(ctx context.Context, channelID id.ChannelID) error {
	res, err := s.db.NewDelete().
		TableExpr("relay_channels").
		Where("id = ?", channelID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("relay/bun: delete channel: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return relay.ErrChannelNotFound
	}
	return nil
}

// ListChannelsByUser returns all channels owned by the user, newest first.
func (s *Store) ListChannelsByUser(ctx context.Context, userID string) ([]*channel.Channel, error) {
	var models []channelModel
	err := s.db.NewSelect().Model(&models).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("relay/bun: list channels: %w", err)
	}
	return convertChannels(models)
}

// CountChannelsByUser returns the number of channels owned by the user.
func (s *Store) CountChannelsByUser(ctx context.Context, userID string) (int64, error) {
	count, err := s.db.NewSelect().
		TableExpr("relay_channels").
		Where("user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("relay/bun: count channels: %w", err)
	}
	return int64(count), nil
}

// MatchChannels resolves fan-out targets for one event.
func (s *Store) MatchChannels(ctx context.Context, userID, eventType, projectID string) ([]*channel.Channel, error) {
	var models []channelModel
	err := s.db.NewSelect().Model(&models).
		Where("user_id = ?", userID).
		Where("enabled").
		Where("? = ANY(event_types)", eventType).
		Where("project_id = '' OR project_id = ?", projectID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("relay/bun: match channels: %w", err)
	}
	return convertChannels(models)
}

func convertChannels(models []channelModel) ([]*channel.Channel, error) {
	channels := make([]*channel.Channel, 0, len(models))
	for i := range models {
		c, err := fromChannelModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("relay/bun: convert channel: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, nil
}
