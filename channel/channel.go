// Package channel defines user-owned notification delivery channels and
// the registry service that manages them. A channel subscribes to a set of
// logical event types; the notification loop resolves matching enabled
// channels at delivery time and fans each event out to them independently.
package channel

import (
	"github.com/lsendel/relay"
	"github.com/lsendel/relay/id"
)

// Type is the closed set of delivery channel kinds. Switches over Type
// are exhaustive; an unknown value is rejected at creation, never
// silently skipped at delivery.
type Type string

const (
	// TypeEmail delivers via the transactional email provider.
	TypeEmail Type = "email"
	// TypeWebhook delivers via a signed HTTP POST to a user-supplied URL.
	TypeWebhook Type = "webhook"
	// TypeSlackIncoming delivers via a Slack incoming webhook URL.
	TypeSlackIncoming Type = "slack_incoming"
	// TypeSlackApp is reserved for bot-token Slack delivery. Channels of
	// this type can be configured but are skipped by the notification
	// loop until app-level transport lands.
	TypeSlackApp Type = "slack_app"
)

// Types lists every valid channel type.
func Types() []Type {
	return []Type{TypeEmail, TypeWebhook, TypeSlackIncoming, TypeSlackApp}
}

// Valid reports whether t is a known channel type.
func (t Type) Valid() bool {
	switch t {
	case TypeEmail, TypeWebhook, TypeSlackIncoming, TypeSlackApp:
		return true
	}
	return false
}

// Config keys by channel type. Config is free-form; these are the keys
// the senders read.
const (
	// ConfigURL is the target URL for webhook and slack_incoming channels.
	ConfigURL = "url"
	// ConfigSecret, when present on a webhook channel, enables HMAC-SHA256
	// request signing.
	ConfigSecret = "secret"
	// ConfigAddress is the recipient address for email channels.
	ConfigAddress = "address"
)

// Channel is a user-configured delivery target.
type Channel struct {
	relay.Entity

	ID     id.ChannelID `json:"id"`
	UserID string       `json:"user_id"`
	// ProjectID scopes the channel to one project. Empty means the channel
	// applies across all of the user's projects.
	ProjectID string `json:"project_id,omitempty"`

	Type   Type              `json:"type"`
	Config map[string]string `json:"config"`
	// EventTypes is the set of logical event names this channel
	// subscribes to.
	EventTypes []string `json:"event_types"`
	Enabled    bool     `json:"enabled"`
}

// Subscribed reports whether the channel subscribes to the given logical
// event type.
func (c *Channel) Subscribed(eventType string) bool {
	for _, et := range c.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the channel covers the given project. A
// channel without a project scope covers everything owned by its user.
func (c *Channel) AppliesTo(projectID string) bool {
	return c.ProjectID == "" || c.ProjectID == projectID
}
