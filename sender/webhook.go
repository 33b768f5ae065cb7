package sender

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// SignatureHeader carries the HMAC request signature when the channel is
// configured with a secret.
const SignatureHeader = "X-Signature"

// Webhook delivers events as JSON POSTs, optionally signed with
// HMAC-SHA256 over the exact request body bytes.
type Webhook struct {
	client *http.Client
	clock  clockwork.Clock
}

// WebhookOption configures a Webhook sender.
type WebhookOption func(*Webhook)

// WithWebhookClient sets the HTTP client (and with it the per-call
// timeout).
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookClock sets the clock used for envelope timestamps.
func WithWebhookClock(c clockwork.Clock) WebhookOption {
	return func(w *Webhook) { w.clock = c }
}

// NewWebhook creates a webhook sender.
func NewWebhook(opts ...WebhookOption) *Webhook {
	w := &Webhook{
		client: defaultClient(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Send builds the {event, timestamp, data} envelope, signs it when secret
// is non-empty, and POSTs it to url. A non-2xx response returns a
// *DeliveryError carrying the status code and status text.
func (w *Webhook) Send(ctx context.Context, url, secret, eventType string, data any) error {
	body, err := json.Marshal(Envelope{
		Event:     eventType,
		Timestamp: w.clock.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("sender: marshal webhook envelope: %w", err)
	}
	return w.post(ctx, url, secret, body)
}

// SendRaw POSTs a pre-built JSON body, signing it when secret is
// non-empty. The legacy alert path uses this for its flattened envelope.
func (w *Webhook) SendRaw(ctx context.Context, url, secret string, body []byte) error {
	return w.post(ctx, url, secret, body)
}

func (w *Webhook) post(ctx context.Context, url, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sender: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SignatureHeader, Signature(secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Transport: "webhook", Status: err.Error()}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Transport: "webhook", StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// Signature computes the signature header value for a body:
// "hmac-sha256=" followed by the lowercase hex HMAC-SHA256 of the body
// keyed with secret.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "hmac-sha256=" + hex.EncodeToString(mac.Sum(nil))
}
