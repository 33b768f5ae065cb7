package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/id"
)

// CreateParams describes a channel to create.
type CreateParams struct {
	UserID     string
	ProjectID  string
	Type       Type
	Config     map[string]string
	EventTypes []string
	Enabled    bool
}

// UpdateParams describes a partial channel update. Nil fields are left
// unchanged.
type UpdateParams struct {
	ProjectID  *string
	Config     map[string]string
	EventTypes []string
	Enabled    *bool
}

// Service is the channel registry: plain CRUD plus the two business rules
// enforced at creation (plan type restrictions and the per-user channel
// cap) and ownership verification on update/delete.
type Service struct {
	store  Store
	plans  PlanResolver
	clock  clockwork.Clock
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock used for entity timestamps.
func WithClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the service's logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a channel registry over the given store and plan
// resolver.
func NewService(store Store, plans PlanResolver, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		plans:  plans,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request against the user's plan and inserts the
// channel. Plan violations return errors wrapping relay.ErrPlanLimit and
// perform no insert.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Channel, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("channel: invalid channel type %q", p.Type)
	}
	if err := validateConfig(p.Type, p.Config); err != nil {
		return nil, err
	}

	plan, err := s.plans.PlanFor(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve plan for user %s: %w", p.UserID, err)
	}
	if !plan.Allows(p.Type) {
		return nil, fmt.Errorf("%w: plan %q does not allow %s channels", relay.ErrPlanLimit, plan.Name, p.Type)
	}

	count, err := s.store.CountChannelsByUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("channel: count channels for user %s: %w", p.UserID, err)
	}
	if count >= int64(plan.MaxChannels) {
		return nil, fmt.Errorf("%w: plan %q allows at most %d channels", relay.ErrPlanLimit, plan.Name, plan.MaxChannels)
	}

	c := &Channel{
		Entity:     relay.NewEntityAt(s.clock.Now()),
		ID:         id.NewChannelID(),
		UserID:     p.UserID,
		ProjectID:  p.ProjectID,
		Type:       p.Type,
		Config:     p.Config,
		EventTypes: p.EventTypes,
		Enabled:    p.Enabled,
	}
	if err := s.store.CreateChannel(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("channel created",
		slog.String("channel_id", c.ID.String()),
		slog.String("user_id", c.UserID),
		slog.String("channel_type", string(c.Type)),
	)
	return c, nil
}

// Get retrieves a channel, verifying ownership.
func (s *Service) Get(ctx context.Context, requesterID string, channelID id.ChannelID) (*Channel, error) {
	c, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if c.UserID != requesterID {
		return nil, relay.ErrNotChannelOwner
	}
	return c, nil
}

// List returns all channels owned by the requester.
func (s *Service) List(ctx context.Context, requesterID string) ([]*Channel, error) {
	return s.store.ListChannelsByUser(ctx, requesterID)
}

// Update applies a partial update after verifying ownership. The channel
// type is immutable; delete and recreate to change it.
func (s *Service) Update(ctx context.Context, requesterID string, channelID id.ChannelID, p UpdateParams) (*Channel, error) {
	c, err := s.Get(ctx, requesterID, channelID)
	if err != nil {
		return nil, err
	}

	if p.ProjectID != nil {
		c.ProjectID = *p.ProjectID
	}
	if p.Config != nil {
		if err := validateConfig(c.Type, p.Config); err != nil {
			return nil, err
		}
		c.Config = p.Config
	}
	if p.EventTypes != nil {
		c.EventTypes = p.EventTypes
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	c.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.UpdateChannel(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a channel after verifying ownership. Events already
// claimed by the notification loop are unaffected.
func (s *Service) Delete(ctx context.Context, requesterID string, channelID id.ChannelID) error {
	if _, err := s.Get(ctx, requesterID, channelID); err != nil {
		return err
	}
	if err := s.store.DeleteChannel(ctx, channelID); err != nil {
		return err
	}
	s.logger.Info("channel deleted",
		slog.String("channel_id", channelID.String()),
		slog.String("user_id", requesterID),
	)
	return nil
}

// validateConfig checks the config keys each sender requires.
func validateConfig(t Type, cfg map[string]string) error {
	switch t {
	case TypeWebhook, TypeSlackIncoming:
		if cfg[ConfigURL] == "" {
			return fmt.Errorf("channel: %s channel requires config.%s", t, ConfigURL)
		}
	case TypeEmail:
		if cfg[ConfigAddress] == "" {
			return fmt.Errorf("channel: email channel requires config.%s", ConfigAddress)
		}
	case TypeSlackApp:
		// Accepted but not yet delivered to; no required keys.
	}
	return nil
}
