package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/outbox"
	"github.com/lsendel/relay/store/memory"
)

func newTestEvent(eventType string) *outbox.Event {
	now := time.Now().UTC()
	return &outbox.Event{
		Entity:      relay.NewEntityAt(now),
		ID:          id.NewEventID(),
		Type:        eventType,
		Status:      outbox.StatusPending,
		Payload:     []byte(`{}`),
		AvailableAt: now,
	}
}

func newTestChannel(userID string, typ channel.Type) *channel.Channel {
	return &channel.Channel{
		Entity:     relay.NewEntity(),
		ID:         id.NewChannelID(),
		UserID:     userID,
		Type:       typ,
		Config:     map[string]string{channel.ConfigURL: "https://example.com/hook"},
		EventTypes: []string{"score_drop"},
		Enabled:    true,
	}
}

// ──────────────────────────────────────────────────
// Outbox
// ──────────────────────────────────────────────────

func TestEnqueueAndGetEvent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ev := newTestEvent("notification")

	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != "notification" {
		t.Errorf("Type = %q, want %q", got.Type, "notification")
	}
	if got.Status != outbox.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
}

func TestEnqueueEvent_Duplicate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ev := newTestEvent("notification")

	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.EnqueueEvent(ctx, ev); !errors.Is(err, relay.ErrEventAlreadyExists) {
		t.Fatalf("expected ErrEventAlreadyExists, got %v", err)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	s := memory.New()
	_, err := s.GetEvent(context.Background(), id.NewEventID())
	if !errors.Is(err, relay.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestClaimEvents_SetsProcessing(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ev := newTestEvent("notification")
	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed event, got %d", len(claimed))
	}
	if claimed[0].Status != outbox.StatusProcessing {
		t.Errorf("claimed status = %q, want processing", claimed[0].Status)
	}

	// A second claim finds nothing.
	again, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected 0 events on second claim, got %d", len(again))
	}
}

func TestClaimEvents_TypeFilter(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.EnqueueEvent(ctx, newTestEvent("notification")); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueEvent(ctx, newTestEvent("email:welcome")); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueEvent(ctx, newTestEvent("content_scoring")); err != nil {
		t.Fatal(err)
	}

	claim := outbox.Claim{
		Types:    []string{"notification"},
		Prefixes: []string{"email:"},
	}
	claimed, err := s.ClaimEvents(ctx, claim, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed events, got %d", len(claimed))
	}
	for _, ev := range claimed {
		if ev.Type == "content_scoring" {
			t.Errorf("claimed event of unmatched type %q", ev.Type)
		}
	}
}

func TestClaimEvents_SkipsFutureEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := memory.New(memory.WithClock(clock))
	ctx := context.Background()

	ev := newTestEvent("notification")
	ev.AvailableAt = clock.Now().Add(time.Minute)
	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected 0 claimed events before due time, got %d", len(claimed))
	}

	clock.Advance(2 * time.Minute)

	claimed, err = s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed event after due time, got %d", len(claimed))
	}
}

func TestClaimEvents_OrderAndLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := memory.New(memory.WithClock(clock))
	ctx := context.Background()

	base := clock.Now().UTC()
	var ids []string
	for i := 3; i >= 1; i-- {
		ev := newTestEvent("notification")
		ev.AvailableAt = base.Add(-time.Duration(i) * time.Minute)
		if err := s.EnqueueEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, ev.ID.String())
	}

	claimed, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed events, got %d", len(claimed))
	}
	// Oldest due first: ids was appended oldest-first.
	if claimed[0].ID.String() != ids[0] {
		t.Errorf("claimed[0] = %s, want oldest %s", claimed[0].ID, ids[0])
	}
	if claimed[1].ID.String() != ids[1] {
		t.Errorf("claimed[1] = %s, want %s", claimed[1].ID, ids[1])
	}
}

func TestClaimEvents_NoDoubleClaim(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	const total = 50
	for i := 0; i < total; i++ {
		if err := s.EnqueueEvent(ctx, newTestEvent("notification")); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 5)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, ev := range claimed {
					seen[ev.ID.String()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct claimed events, got %d", total, len(seen))
	}
	for evID, n := range seen {
		if n != 1 {
			t.Errorf("event %s claimed %d times", evID, n)
		}
	}
}

func TestRetryEvent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := memory.New(memory.WithClock(clock))
	ctx := context.Background()

	ev := newTestEvent("notification")
	ev.AvailableAt = clock.Now().UTC()
	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 1); err != nil {
		t.Fatal(err)
	}

	if err := s.RetryEvent(ctx, ev.ID, "send failed", 2*time.Minute); err != nil {
		t.Fatalf("retry: %v", err)
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != outbox.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if got.LastError != "send failed" {
		t.Errorf("LastError = %q, want %q", got.LastError, "send failed")
	}

	// Not claimable until the delay passes.
	claimed, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected 0 claimable before retry delay, got %d", len(claimed))
	}

	clock.Advance(3 * time.Minute)
	claimed, err = s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimable after retry delay, got %d", len(claimed))
	}
}

func TestRetryEvent_ZeroDelayImmediatelyClaimable(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ev := newTestEvent("notification")
	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.RetryEvent(ctx, ev.ID, "transient", 0); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected event to be immediately re-claimable, got %d", len(claimed))
	}
}

func TestCompleteEvent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ev := newTestEvent("notification")
	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteEvent(ctx, ev.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != outbox.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Error("ProcessedAt not set")
	}
}

func TestFailAndReplayEvent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ev := newTestEvent("notification")
	if err := s.EnqueueEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if err := s.RetryEvent(ctx, ev.ID, "first failure", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.FailEvent(ctx, ev.ID, "all channels failed"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != outbox.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.LastError != "all channels failed" {
		t.Errorf("LastError = %q", got.LastError)
	}

	// Failed events are not claimable.
	claimed, err := s.ClaimEvents(ctx, outbox.Claim{Types: []string{"notification"}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Fatalf("failed event should not be claimable, got %d", len(claimed))
	}

	// Replay resets attempts and returns the event to the queue.
	if err := s.ReplayEvent(ctx, ev.ID); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, err = s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != outbox.StatusPending {
		t.Errorf("Status after replay = %q, want pending", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("Attempts after replay = %d, want 0", got.Attempts)
	}
	if got.ProcessedAt != nil {
		t.Error("ProcessedAt should be cleared on replay")
	}
}

func TestListEventsByStatus(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := newTestEvent("notification")
		ev.CreatedAt = ev.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := s.EnqueueEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	events, err := s.ListEventsByStatus(ctx, outbox.StatusPending, outbox.ListOpts{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	events, err = s.ListEventsByStatus(ctx, outbox.StatusPending, outbox.ListOpts{Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event with offset 4, got %d", len(events))
	}

	events, err = s.ListEventsByStatus(ctx, outbox.StatusCompleted, outbox.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 completed events, got %d", len(events))
	}
}

func TestCountEvents(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.EnqueueEvent(ctx, newTestEvent("notification")); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueEvent(ctx, newTestEvent("email:welcome")); err != nil {
		t.Fatal(err)
	}

	count, err := s.CountEvents(ctx, outbox.CountOpts{Status: outbox.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	count, err = s.CountEvents(ctx, outbox.CountOpts{Type: "email:welcome"})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

// ──────────────────────────────────────────────────
// Channels
// ──────────────────────────────────────────────────

func TestChannelCRUD(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ch := newTestChannel("user-1", channel.TypeWebhook)
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateChannel(ctx, ch); !errors.Is(err, relay.ErrChannelAlreadyExists) {
		t.Fatalf("expected ErrChannelAlreadyExists, got %v", err)
	}

	got, err := s.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != channel.TypeWebhook {
		t.Errorf("Type = %q, want webhook", got.Type)
	}

	got.Enabled = false
	if err := s.UpdateChannel(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = s.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Error("Enabled should be false after update")
	}

	if err := s.DeleteChannel(ctx, ch.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetChannel(ctx, ch.ID); !errors.Is(err, relay.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestChannel_CopiedNotShared(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ch := newTestChannel("user-1", channel.TypeWebhook)
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's copy must not affect the stored channel.
	ch.Config[channel.ConfigURL] = "https://evil.example.com"
	ch.EventTypes[0] = "mutated"

	got, err := s.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Config[channel.ConfigURL] != "https://example.com/hook" {
		t.Errorf("stored config mutated: %q", got.Config[channel.ConfigURL])
	}
	if got.EventTypes[0] != "score_drop" {
		t.Errorf("stored event types mutated: %q", got.EventTypes[0])
	}
}

func TestListAndCountChannelsByUser(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.CreateChannel(ctx, newTestChannel("user-1", channel.TypeWebhook)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreateChannel(ctx, newTestChannel("user-2", channel.TypeEmail)); err != nil {
		t.Fatal(err)
	}

	channels, err := s.ListChannelsByUser(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(channels))
	}

	count, err := s.CountChannelsByUser(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestMatchChannels(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	match := newTestChannel("user-1", channel.TypeWebhook)
	if err := s.CreateChannel(ctx, match); err != nil {
		t.Fatal(err)
	}

	disabled := newTestChannel("user-1", channel.TypeWebhook)
	disabled.Enabled = false
	if err := s.CreateChannel(ctx, disabled); err != nil {
		t.Fatal(err)
	}

	otherUser := newTestChannel("user-2", channel.TypeWebhook)
	if err := s.CreateChannel(ctx, otherUser); err != nil {
		t.Fatal(err)
	}

	otherType := newTestChannel("user-1", channel.TypeWebhook)
	otherType.EventTypes = []string{"quick_win"}
	if err := s.CreateChannel(ctx, otherType); err != nil {
		t.Fatal(err)
	}

	scoped := newTestChannel("user-1", channel.TypeWebhook)
	scoped.ProjectID = "proj-other"
	if err := s.CreateChannel(ctx, scoped); err != nil {
		t.Fatal(err)
	}

	got, err := s.MatchChannels(ctx, "user-1", "score_drop", "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 matching channel, got %d", len(got))
	}
	if got[0].ID != match.ID {
		t.Errorf("matched %s, want %s", got[0].ID, match.ID)
	}
}

func TestMatchChannels_UnscopedCoversAllProjects(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ch := newTestChannel("user-1", channel.TypeWebhook)
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	for _, project := range []string{"proj-a", "proj-b", ""} {
		got, err := s.MatchChannels(ctx, "user-1", "score_drop", project)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Errorf("project %q: expected 1 match, got %d", project, len(got))
		}
	}
}
