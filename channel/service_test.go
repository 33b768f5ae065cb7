package channel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/store/memory"
)

func newService(t *testing.T, plan channel.Plan) (*channel.Service, *memory.Store) {
	t.Helper()
	st := memory.New(memory.WithClock(clockwork.NewFakeClock()))
	svc := channel.NewService(st, channel.StaticPlan(plan))
	return svc, st
}

func webhookParams(userID string) channel.CreateParams {
	return channel.CreateParams{
		UserID:     userID,
		Type:       channel.TypeWebhook,
		Config:     map[string]string{channel.ConfigURL: "https://example.com/hook"},
		EventTypes: []string{"score_drop"},
		Enabled:    true,
	}
}

func TestService_Create(t *testing.T) {
	svc, st := newService(t, channel.ProPlan())

	c, err := svc.Create(context.Background(), webhookParams("user-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID.IsNil() {
		t.Error("expected a generated channel ID")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Error("expected entity timestamps to be set")
	}

	got, err := st.GetChannel(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "user-1" || got.Type != channel.TypeWebhook {
		t.Errorf("stored channel = %+v", got)
	}
}

func TestService_CreateRejectsTypeOutsidePlan(t *testing.T) {
	svc, st := newService(t, channel.FreePlan())

	_, err := svc.Create(context.Background(), webhookParams("user-1"))
	if !errors.Is(err, relay.ErrPlanLimit) {
		t.Fatalf("expected ErrPlanLimit, got %v", err)
	}

	// Rejection must not leave a row behind.
	n, err := st.CountChannelsByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("channel count = %d, want 0", n)
	}
}

func TestService_CreateEnforcesChannelCap(t *testing.T) {
	svc, _ := newService(t, channel.FreePlan())
	ctx := context.Background()

	params := channel.CreateParams{
		UserID:  "user-1",
		Type:    channel.TypeEmail,
		Config:  map[string]string{channel.ConfigAddress: "user@example.com"},
		Enabled: true,
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, params); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	_, err := svc.Create(ctx, params)
	if !errors.Is(err, relay.ErrPlanLimit) {
		t.Fatalf("expected ErrPlanLimit on fourth channel, got %v", err)
	}

	// Another user is unaffected by the first user's count.
	params.UserID = "user-2"
	if _, err := svc.Create(ctx, params); err != nil {
		t.Fatalf("create for second user: %v", err)
	}
}

func TestService_CreateValidatesConfig(t *testing.T) {
	svc, _ := newService(t, channel.ProPlan())
	ctx := context.Background()

	cases := []struct {
		name   string
		typ    channel.Type
		config map[string]string
		ok     bool
	}{
		{"webhook missing url", channel.TypeWebhook, map[string]string{}, false},
		{"slack missing url", channel.TypeSlackIncoming, nil, false},
		{"email missing address", channel.TypeEmail, map[string]string{"other": "x"}, false},
		{"slack app no required keys", channel.TypeSlackApp, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, channel.CreateParams{
				UserID: "user-1",
				Type:   tc.typ,
				Config: tc.config,
			})
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	_, err := svc.Create(ctx, channel.CreateParams{UserID: "user-1", Type: channel.Type("pager")})
	if err == nil {
		t.Error("expected error for unknown channel type")
	}
}

func TestService_OwnershipChecks(t *testing.T) {
	svc, _ := newService(t, channel.ProPlan())
	ctx := context.Background()

	c, err := svc.Create(ctx, webhookParams("owner"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, "intruder", c.ID); !errors.Is(err, relay.ErrNotChannelOwner) {
		t.Errorf("get: expected ErrNotChannelOwner, got %v", err)
	}
	if _, err := svc.Update(ctx, "intruder", c.ID, channel.UpdateParams{}); !errors.Is(err, relay.ErrNotChannelOwner) {
		t.Errorf("update: expected ErrNotChannelOwner, got %v", err)
	}
	if err := svc.Delete(ctx, "intruder", c.ID); !errors.Is(err, relay.ErrNotChannelOwner) {
		t.Errorf("delete: expected ErrNotChannelOwner, got %v", err)
	}

	if _, err := svc.Get(ctx, "owner", c.ID); err != nil {
		t.Errorf("owner get: %v", err)
	}
}

func TestService_PartialUpdate(t *testing.T) {
	svc, _ := newService(t, channel.ProPlan())
	ctx := context.Background()

	c, err := svc.Create(ctx, webhookParams("user-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	disabled := false
	updated, err := svc.Update(ctx, "user-1", c.ID, channel.UpdateParams{
		Enabled: &disabled,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Enabled {
		t.Error("expected channel disabled")
	}
	// Untouched fields survive.
	if updated.Config[channel.ConfigURL] != "https://example.com/hook" {
		t.Errorf("config url = %q", updated.Config[channel.ConfigURL])
	}
	if len(updated.EventTypes) != 1 || updated.EventTypes[0] != "score_drop" {
		t.Errorf("event types = %v", updated.EventTypes)
	}

	// Config replacement is validated against the channel's type.
	if _, err := svc.Update(ctx, "user-1", c.ID, channel.UpdateParams{
		Config: map[string]string{"token": "x"},
	}); err == nil {
		t.Error("expected validation error for webhook config without url")
	}
}

func TestService_ListAndDelete(t *testing.T) {
	svc, _ := newService(t, channel.ProPlan())
	ctx := context.Background()

	a, _ := svc.Create(ctx, webhookParams("user-1"))
	b, _ := svc.Create(ctx, webhookParams("user-1"))
	if _, err := svc.Create(ctx, webhookParams("user-2")); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}

	if err := svc.Delete(ctx, "user-1", a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = svc.List(ctx, "user-1")
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("after delete list = %v", list)
	}

	if err := svc.Delete(ctx, "user-1", a.ID); !errors.Is(err, relay.ErrChannelNotFound) {
		t.Errorf("second delete: expected ErrChannelNotFound, got %v", err)
	}
}
