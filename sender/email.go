package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Email is the transactional email transport. The dispatch loop depends
// on this interface; production wires the HTTP provider client, tests use
// a recording fake.
type Email interface {
	// Send delivers one message. Provider rejections surface as
	// *DeliveryError.
	Send(ctx context.Context, to, subject, body string) error
}

// EmailAPI delivers mail through an HTTP transactional-email provider: a
// JSON POST authenticated with a bearer token.
type EmailAPI struct {
	client   *http.Client
	endpoint string
	apiKey   string
	from     string
}

// EmailAPIOption configures an EmailAPI sender.
type EmailAPIOption func(*EmailAPI)

// WithEmailClient sets the HTTP client.
func WithEmailClient(c *http.Client) EmailAPIOption {
	return func(e *EmailAPI) { e.client = c }
}

// NewEmailAPI creates a provider client. endpoint is the provider's send
// URL, apiKey the bearer credential, from the sender address.
func NewEmailAPI(endpoint, apiKey, from string, opts ...EmailAPIOption) *EmailAPI {
	e := &EmailAPI{
		client:   defaultClient(),
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send implements Email.
func (e *EmailAPI) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(emailRequest{
		From:    e.from,
		To:      to,
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("sender: marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sender: build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return &DeliveryError{Transport: "email", Status: err.Error()}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Transport: "email", StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
