package job_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/job"
)

func TestParseKind(t *testing.T) {
	for _, kind := range job.Kinds() {
		got, err := job.ParseKind(kind.String())
		if err != nil {
			t.Errorf("ParseKind(%q): %v", kind, err)
		}
		if got != kind {
			t.Errorf("ParseKind(%q) = %q", kind, got)
		}
	}
}

func TestParseKind_Unknown(t *testing.T) {
	_, err := job.ParseKind("bitcoin_mining")
	if !errors.Is(err, relay.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

type scoringPayload struct {
	ContentID string `json:"content_id"`
	Score     int    `json:"score"`
}

func TestRegisterDefinition_UnmarshalsPayload(t *testing.T) {
	r := job.NewRegistry()

	var got scoringPayload
	job.RegisterDefinition(r, job.NewDefinition(job.KindScoring, func(_ context.Context, p scoringPayload) error {
		got = p
		return nil
	}))

	handler, ok := r.Get(job.KindScoring)
	if !ok {
		t.Fatal("handler not registered")
	}

	err := handler(context.Background(), []byte(`{"content_id":"c-1","score":42}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got.ContentID != "c-1" || got.Score != 42 {
		t.Errorf("payload = %+v", got)
	}
}

func TestRegisterDefinition_BadPayload(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition(job.KindScoring, func(_ context.Context, _ scoringPayload) error {
		t.Error("handler should not be called on unmarshal failure")
		return nil
	}))

	handler, _ := r.Get(job.KindScoring)
	if err := handler(context.Background(), []byte(`not json`)); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestRegistry_Kinds(t *testing.T) {
	r := job.NewRegistry()
	if len(r.Kinds()) != 0 {
		t.Fatal("expected no kinds on empty registry")
	}

	job.RegisterDefinition(r, job.NewDefinition(job.KindScoring, func(_ context.Context, _ scoringPayload) error {
		return nil
	}))
	job.RegisterDefinition(r, job.NewDefinition(job.KindSummary, func(_ context.Context, _ struct{}) error {
		return nil
	}))

	kinds := r.Kinds()
	if len(kinds) != 2 {
		t.Fatalf("expected 2 kinds, got %d", len(kinds))
	}
	seen := make(map[job.Kind]bool)
	for _, k := range kinds {
		seen[k] = true
	}
	if !seen[job.KindScoring] || !seen[job.KindSummary] {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestRegistry_GetUnregistered(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get(job.KindEnrichment); ok {
		t.Fatal("expected no handler for unregistered kind")
	}
}
