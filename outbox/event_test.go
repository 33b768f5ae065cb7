package outbox_test

import (
	"testing"

	"github.com/lsendel/relay/outbox"
)

func TestClaim_Matches(t *testing.T) {
	claim := outbox.Claim{
		Types:    []string{outbox.TypeNotification},
		Prefixes: []string{outbox.TypePrefixEmail, outbox.TypePrefixWebhook},
	}

	cases := []struct {
		typ  string
		want bool
	}{
		{"notification", true},
		{"email:weekly_digest", true},
		{"webhook:score_drop", true},
		{"webhook:alert", true},
		{"content_scoring", false},
		{"notification_extra", false},
		{"email", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := claim.Matches(tc.typ); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestClaim_EmptyMatchesNothing(t *testing.T) {
	var claim outbox.Claim
	for _, typ := range []string{"notification", "email:x", "anything"} {
		if claim.Matches(typ) {
			t.Errorf("empty claim matched %q", typ)
		}
	}
}

func TestTypeHelpers(t *testing.T) {
	if got := outbox.EmailType("weekly_digest"); got != "email:weekly_digest" {
		t.Errorf("EmailType = %q", got)
	}
	if got := outbox.WebhookType("score_drop"); got != "webhook:score_drop" {
		t.Errorf("WebhookType = %q", got)
	}
}
