package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/id"
)

const channelColumns = `id, user_id, project_id, type, config, event_types, enabled,
	created_at, updated_at`

// CreateChannel persists a new channel.
func (s *Store) CreateChannel(ctx context.Context, c *channel.Channel) error {
	config, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("relay/postgres: marshal channel config: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO relay_channels (
			id, user_id, project_id, type, config, event_types, enabled,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID.String(), c.UserID, c.ProjectID, string(c.Type),
		config, c.EventTypes, c.Enabled,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return relay.ErrChannelAlreadyExists
		}
		return fmt.Errorf("relay/postgres: create channel: %w", err)
	}
	return nil
}

// GetChannel retrieves a channel by ID.
func (s *Store) GetChannel(ctx context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM relay_channels WHERE id = $1`,
		channelID.String(),
	)

	c, err := scanChannel(row)
	if err != nil {
		if isNoRows(err) {
			return nil, relay.ErrChannelNotFound
		}
		return nil, fmt.Errorf("relay/postgres: get channel: %w", err)
	}
	return c, nil
}

// UpdateChannel persists changes to an existing channel.
func (s *Store) UpdateChannel(ctx context.Context, c *channel.Channel) error {
	config, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("relay/postgres: marshal channel config: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE relay_channels SET
			project_id = $2, config = $3, event_types = $4, enabled = $5,
			updated_at = NOW()
		WHERE id = $1`,
		c.ID.String(), c.ProjectID, config, c.EventTypes, c.Enabled,
	)
	if err != nil {
		return fmt.Errorf("relay/postgres: update channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relay.ErrChannelNotFound
	}
	return nil
}

// DeleteChannel removes a channel by ID.
func (s *Store) DeleteChannel(ctx context.Context, channelID id.ChannelID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM relay_channels WHERE id = $1`, channelID.String(),
	)
	if err != nil {
		return fmt.Errorf("relay/postgres: delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relay.ErrChannelNotFound
	}
	return nil
}

// ListChannelsByUser returns all channels owned by the user, newest first.
func (s *Store) ListChannelsByUser(ctx context.Context, userID string) ([]*channel.Channel, error) {
	query, args, err := psql.Select(channelColumns).
		From("relay_channels").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: build list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: list channels: %w", err)
	}
	defer rows.Close()

	return collectChannels(rows)
}

// CountChannelsByUser returns the number of channels owned by the user.
func (s *Store) CountChannelsByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM relay_channels WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("relay/postgres: count channels: %w", err)
	}
	return count, nil
}

// MatchChannels resolves fan-out targets for one event: enabled channels
// of the user that subscribe to the event type and cover the project.
func (s *Store) MatchChannels(ctx context.Context, userID, eventType, projectID string) ([]*channel.Channel, error) {
	query, args, err := psql.Select(channelColumns).
		From("relay_channels").
		Where(sq.Eq{"user_id": userID, "enabled": true}).
		Where("? = ANY(event_types)", eventType).
		Where(sq.Or{sq.Eq{"project_id": ""}, sq.Eq{"project_id": projectID}}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: build match query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relay/postgres: match channels: %w", err)
	}
	defer rows.Close()

	return collectChannels(rows)
}

func scanChannel(row pgx.Row) (*channel.Channel, error) {
	var (
		c       channel.Channel
		idStr   string
		typeStr string
		config  []byte
	)
	err := row.Scan(
		&idStr, &c.UserID, &c.ProjectID, &typeStr, &config, &c.EventTypes,
		&c.Enabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = channel.Type(typeStr)
	if len(config) > 0 {
		if err := json.Unmarshal(config, &c.Config); err != nil {
			return nil, fmt.Errorf("relay/postgres: unmarshal channel config: %w", err)
		}
	}

	parsedID, parseErr := id.ParseChannelID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("relay/postgres: parse channel id %q: %w", idStr, parseErr)
	}
	c.ID = parsedID

	return &c, nil
}

func collectChannels(rows pgx.Rows) ([]*channel.Channel, error) {
	var channels []*channel.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("relay/postgres: scan channel row: %w", err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay/postgres: iterate channel rows: %w", err)
	}
	return channels, nil
}
