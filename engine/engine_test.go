package engine_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/engine"
	"github.com/lsendel/relay/job"
	"github.com/lsendel/relay/outbox"
	"github.com/lsendel/relay/store/memory"
)

// ──────────────────────────────────────────────────
// Test payloads
// ──────────────────────────────────────────────────

type scoringInput struct {
	SiteID string `json:"site_id"`
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestEngine_NilStoreRejected(t *testing.T) {
	if _, err := engine.New(nil); !errors.Is(err, relay.ErrNoStore) {
		t.Fatalf("New(nil) error = %v, want ErrNoStore", err)
	}
}

func TestEngine_ZeroConfigFieldsKeepDefaults(t *testing.T) {
	eng, err := engine.New(memory.New(), engine.WithConfig(relay.Config{
		NotifyBatchSize: 50,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := eng.Config()
	if cfg.NotifyBatchSize != 50 {
		t.Errorf("NotifyBatchSize = %d, want 50", cfg.NotifyBatchSize)
	}
	if cfg.JobBatchSize != 10 {
		t.Errorf("JobBatchSize = %d, want default 10", cfg.JobBatchSize)
	}
	if cfg.JobRetryDelay != 120*time.Second {
		t.Errorf("JobRetryDelay = %v, want default 120s", cfg.JobRetryDelay)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want default 5s", cfg.PollInterval)
	}
}

// ──────────────────────────────────────────────────
// End-to-end: Register → Enqueue → Start → process
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd_RegisterEnqueueProcess(t *testing.T) {
	st := memory.New()
	eng, err := engine.New(st, engine.WithConfig(relay.Config{
		PollInterval: 10 * time.Millisecond,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var processed atomic.Bool
	var gotInput scoringInput
	engine.Register(eng, job.NewDefinition(job.KindScoring, func(_ context.Context, in scoringInput) error {
		gotInput = in
		processed.Store(true)
		return nil
	}))

	ev, err := engine.EnqueueJob(context.Background(), eng, job.KindScoring, scoringInput{SiteID: "site-9"})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if ev.Status != outbox.StatusPending {
		t.Fatalf("event status = %q, want pending", ev.Status)
	}

	if startErr := eng.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the job to be processed")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if stopErr := eng.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	if gotInput.SiteID != "site-9" {
		t.Errorf("payload SiteID = %q, want %q", gotInput.SiteID, "site-9")
	}

	got, err := st.GetEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Status != outbox.StatusCompleted {
		t.Errorf("event status = %q, want completed", got.Status)
	}
}

func TestEngine_EnqueueJobRejectsUnknownKind(t *testing.T) {
	eng, err := engine.New(memory.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = engine.EnqueueJob(context.Background(), eng, job.Kind("mystery_task"), struct{}{})
	if !errors.Is(err, relay.ErrUnknownKind) {
		t.Fatalf("EnqueueJob error = %v, want ErrUnknownKind", err)
	}
}

// ──────────────────────────────────────────────────
// Retry scheduling through the configured delay
// ──────────────────────────────────────────────────

func TestEngine_FailedJobRetriesAfterConfiguredDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := memory.New(memory.WithClock(clock))
	eng, err := engine.New(st,
		engine.WithClock(clock),
		engine.WithConfig(relay.Config{JobRetryDelay: time.Minute}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls atomic.Int64
	engine.Register(eng, job.NewDefinition(job.KindEnrichment, func(context.Context, scoringInput) error {
		calls.Add(1)
		return errors.New("provider unavailable")
	}))

	ctx := context.Background()
	ev, err := engine.EnqueueJob(ctx, eng, job.KindEnrichment, scoringInput{SiteID: "site-1"})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if runErr := eng.JobDispatcher().RunOnce(ctx); runErr != nil {
		t.Fatalf("RunOnce: %v", runErr)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler calls = %d, want 1", got)
	}

	got, err := st.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Status != outbox.StatusPending {
		t.Fatalf("event status = %q, want pending after retry", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}

	// Before the delay elapses the event is not claimable.
	clock.Advance(59 * time.Second)
	if runErr := eng.JobDispatcher().RunOnce(ctx); runErr != nil {
		t.Fatalf("RunOnce: %v", runErr)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler calls before delay = %d, want 1", got)
	}

	clock.Advance(2 * time.Second)
	if runErr := eng.JobDispatcher().RunOnce(ctx); runErr != nil {
		t.Fatalf("RunOnce: %v", runErr)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("handler calls after delay = %d, want 2", got)
	}
}

// ──────────────────────────────────────────────────
// Hook emission on enqueue
// ──────────────────────────────────────────────────

type captureExtension struct {
	enqueued []*outbox.Event
}

func (c *captureExtension) Name() string { return "capture" }

func (c *captureExtension) OnEventEnqueued(_ context.Context, ev *outbox.Event) error {
	c.enqueued = append(c.enqueued, ev)
	return nil
}

func TestEngine_EnqueueEmitsEnqueuedHook(t *testing.T) {
	capture := &captureExtension{}
	eng, err := engine.New(memory.New(), engine.WithExtension(capture))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ev, err := eng.EnqueueNotification(context.Background(), outbox.Notification{
		UserID:    "u1",
		EventType: "score_drop",
		Data:      map[string]any{"delta": -12},
	})
	if err != nil {
		t.Fatalf("EnqueueNotification: %v", err)
	}

	if len(capture.enqueued) != 1 {
		t.Fatalf("enqueued hooks = %d, want 1", len(capture.enqueued))
	}
	if capture.enqueued[0].ID != ev.ID {
		t.Errorf("hook saw event %s, want %s", capture.enqueued[0].ID, ev.ID)
	}
	if capture.enqueued[0].Type != outbox.TypeNotification {
		t.Errorf("hook saw type %q, want %q", capture.enqueued[0].Type, outbox.TypeNotification)
	}
}

// ──────────────────────────────────────────────────
// Notification fan-out through the channel registry
// ──────────────────────────────────────────────────

func TestEngine_NotificationFanOutToWebhookChannel(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := memory.New()
	eng, err := engine.New(st,
		engine.WithPlanResolver(channel.StaticPlan(channel.ProPlan())),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, chErr := eng.Channels().Create(ctx, channel.CreateParams{
		UserID:     "u1",
		Type:       channel.TypeWebhook,
		Config:     map[string]string{channel.ConfigURL: srv.URL, channel.ConfigSecret: "s3cret"},
		EventTypes: []string{"score_drop"},
		Enabled:    true,
	}); chErr != nil {
		t.Fatalf("Create channel: %v", chErr)
	}

	ev, err := eng.EnqueueNotification(ctx, outbox.Notification{
		UserID:    "u1",
		EventType: "score_drop",
		Data:      map[string]any{"delta": -12},
	})
	if err != nil {
		t.Fatalf("EnqueueNotification: %v", err)
	}

	if runErr := eng.NotifyDispatcher().RunOnce(ctx); runErr != nil {
		t.Fatalf("RunOnce: %v", runErr)
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("webhook deliveries = %d, want 1", got)
	}

	got, err := st.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Status != outbox.StatusCompleted {
		t.Errorf("event status = %q, want completed", got.Status)
	}
}

// ──────────────────────────────────────────────────
// Operator replay
// ──────────────────────────────────────────────────

func TestEngine_ReplayReturnsFailedEventToQueue(t *testing.T) {
	st := memory.New()
	eng, err := engine.New(st, engine.WithConfig(relay.Config{JobMaxAttempts: 1}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	engine.Register(eng, job.NewDefinition(job.KindSummary, func(context.Context, scoringInput) error {
		return errors.New("template missing")
	}))

	ctx := context.Background()
	ev, err := engine.EnqueueJob(ctx, eng, job.KindSummary, scoringInput{SiteID: "site-2"})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if runErr := eng.JobDispatcher().RunOnce(ctx); runErr != nil {
		t.Fatalf("RunOnce: %v", runErr)
	}
	got, err := st.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Status != outbox.StatusFailed {
		t.Fatalf("event status = %q, want failed after exhausting attempts", got.Status)
	}

	if replayErr := eng.Replay(ctx, ev.ID); replayErr != nil {
		t.Fatalf("Replay: %v", replayErr)
	}

	got, err = st.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Status != outbox.StatusPending {
		t.Errorf("event status = %q, want pending after replay", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 after replay", got.Attempts)
	}
}
