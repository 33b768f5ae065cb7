package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/id"
)

// CreateChannel stores the channel as a Hash and indexes it by owner.
func (s *Store) CreateChannel(ctx context.Context, c *channel.Channel) error {
	cID := c.ID.String()
	key := channelKey(cID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("relay/redis: create channel check exists: %w", err)
	}
	if exists > 0 {
		return relay.ErrChannelAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, channelToMap(c))
	pipe.SAdd(ctx, userChannelsKey(c.UserID), cID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay/redis: create channel: %w", err)
	}
	return nil
}

// GetChannel retrieves a channel by ID.
func (s *Store) GetChannel(ctx context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	vals, err := s.client.HGetAll(ctx, channelKey(channelID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("relay/redis: get channel: %w", err)
	}
	if len(vals) == 0 {
		return nil, relay.ErrChannelNotFound
	}
	return mapToChannel(vals)
}

// UpdateChannel persists changes to an existing channel.
func (s *Store) UpdateChannel(ctx context.Context, c *channel.Channel) error {
	key := channelKey(c.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("relay/redis: update channel check exists: %w", err)
	}
	if exists == 0 {
		return relay.ErrChannelNotFound
	}

	fields := channelToMap(c)
	fields["updated_at"] = s.clock.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("relay/redis: update channel: %w", err)
	}
	return nil
}

// DeleteChannel removes a channel by ID.
func (s *Store) DeleteChannel(ctx context.Context, channelID id.ChannelID) error {
	cID := channelID.String()
	key := channelKey(cID)

	userID, err := s.client.HGet(ctx, key, "user_id").Result()
	if err != nil {
		return relay.ErrChannelNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, userChannelsKey(userID), cID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay/redis: delete channel: %w", err)
	}
	return nil
}

// ListChannelsByUser returns all channels owned by the user, newest first.
func (s *Store) ListChannelsByUser(ctx context.Context, userID string) ([]*channel.Channel, error) {
	channels, err := s.channelsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].CreatedAt.After(channels[j].CreatedAt)
	})
	return channels, nil
}

// CountChannelsByUser returns the number of channels owned by the user.
func (s *Store) CountChannelsByUser(ctx context.Context, userID string) (int64, error) {
	count, err := s.client.SCard(ctx, userChannelsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("relay/redis: count channels: %w", err)
	}
	return count, nil
}

// MatchChannels resolves fan-out targets for one event.
func (s *Store) MatchChannels(ctx context.Context, userID, eventType, projectID string) ([]*channel.Channel, error) {
	channels, err := s.channelsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	matched := channels[:0]
	for _, c := range channels {
		if c.Enabled && c.Subscribed(eventType) && c.AppliesTo(projectID) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// ── helpers ──

func (s *Store) channelsByUser(ctx context.Context, userID string) ([]*channel.Channel, error) {
	ids, err := s.client.SMembers(ctx, userChannelsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("relay/redis: channels smembers: %w", err)
	}

	channels := make([]*channel.Channel, 0, len(ids))
	for _, cID := range ids {
		vals, getErr := s.client.HGetAll(ctx, channelKey(cID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		c, mapErr := mapToChannel(vals)
		if mapErr != nil {
			continue
		}
		channels = append(channels, c)
	}
	return channels, nil
}

func channelToMap(c *channel.Channel) map[string]interface{} {
	return map[string]interface{}{
		"id":          c.ID.String(),
		"user_id":     c.UserID,
		"project_id":  c.ProjectID,
		"type":        string(c.Type),
		"config":      marshalJSON(c.Config),
		"event_types": marshalJSON(c.EventTypes),
		"enabled":     boolField(c.Enabled),
		"created_at":  c.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  c.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToChannel(m map[string]string) (*channel.Channel, error) {
	cID, err := id.ParseChannelID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("relay/redis: parse channel id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &channel.Channel{
		Entity: relay.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:         cID,
		UserID:     m["user_id"],
		ProjectID:  m["project_id"],
		Type:       channel.Type(m["type"]),
		Config:     unmarshalMap(m["config"]),
		EventTypes: unmarshalStrings(m["event_types"]),
		Enabled:    m["enabled"] == "1",
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// marshalJSON marshals to a JSON string for Hash storage.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

// unmarshalStrings parses a JSON array of strings.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}

// unmarshalMap parses a JSON map.
func unmarshalMap(s string) map[string]string {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]string)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
