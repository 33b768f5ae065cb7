package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/outbox"
)

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	bun.BaseModel `bun:"table:relay_events"`

	ID          string     `bun:"id,pk"`
	Type        string     `bun:"type,notnull"`
	EventType   string     `bun:"event_type,notnull,default:''"`
	Payload     []byte     `bun:"payload,notnull,type:bytea"`
	Status      string     `bun:"status,notnull,default:'pending'"`
	Attempts    int        `bun:"attempts,notnull,default:0"`
	LastError   string     `bun:"last_error,notnull,default:''"`
	UserID      string     `bun:"user_id,notnull,default:''"`
	ProjectID   string     `bun:"project_id,notnull,default:''"`
	AvailableAt time.Time  `bun:"available_at,notnull,default:current_timestamp"`
	ProcessedAt *time.Time `bun:"processed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toEventModel(e *outbox.Event) *eventModel {
	return &eventModel{
		ID:          e.ID.String(),
		Type:        e.Type,
		EventType:   e.EventType,
		Payload:     e.Payload,
		Status:      string(e.Status),
		Attempts:    e.Attempts,
		LastError:   e.LastError,
		UserID:      e.UserID,
		ProjectID:   e.ProjectID,
		AvailableAt: e.AvailableAt,
		ProcessedAt: e.ProcessedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*outbox.Event, error) {
	parsedID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("relay/bun: parse event id %q: %w", m.ID, err)
	}

	return &outbox.Event{
		Entity: relay.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Type:        m.Type,
		EventType:   m.EventType,
		Payload:     m.Payload,
		Status:      outbox.Status(m.Status),
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		UserID:      m.UserID,
		ProjectID:   m.ProjectID,
		AvailableAt: m.AvailableAt,
		ProcessedAt: m.ProcessedAt,
	}, nil
}

// ── Channel model ─────────────────────────────────────────────────

type channelModel struct {
	bun.BaseModel `bun:"table:relay_channels"`

	ID         string            `bun:"id,pk"`
	UserID     string            `bun:"user_id,notnull"`
	ProjectID  string            `bun:"project_id,notnull,default:''"`
	Type       string            `bun:"type,notnull"`
	Config     map[string]string `bun:"config,type:jsonb"`
	EventTypes []string          `bun:"event_types,array"`
	Enabled    bool              `bun:"enabled,notnull,default:true"`
	CreatedAt  time.Time         `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time         `bun:"updated_at,notnull,default:current_timestamp"`
}

func toChannelModel(c *channel.Channel) *channelModel {
	return &channelModel{
		ID:         c.ID.String(),
		UserID:     c.UserID,
		ProjectID:  c.ProjectID,
		Type:       string(c.Type),
		Config:     c.Config,
		EventTypes: c.EventTypes,
		Enabled:    c.Enabled,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func fromChannelModel(m *channelModel) (*channel.Channel, error) {
	parsedID, err := id.ParseChannelID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("relay/bun: parse channel id %q: %w", m.ID, err)
	}

	return &channel.Channel{
		Entity: relay.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         parsedID,
		UserID:     m.UserID,
		ProjectID:  m.ProjectID,
		Type:       channel.Type(m.Type),
		Config:     m.Config,
		EventTypes: m.EventTypes,
		Enabled:    m.Enabled,
	}, nil
}
