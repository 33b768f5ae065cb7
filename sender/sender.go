// Package sender implements the channel-type-specific delivery transports:
// signed HTTP webhooks, Slack incoming webhooks, and transactional email.
// Senders report failures as *DeliveryError; the dispatch loop decides
// whether a failed channel is fatal to the overall event.
package sender

import (
	"fmt"
	"net/http"
	"time"
)

// DeliveryError is returned when a downstream endpoint rejects or fails a
// delivery. It carries the HTTP status when one was received.
type DeliveryError struct {
	// Transport names the sender that failed ("webhook", "slack", "email").
	Transport string
	// StatusCode is the HTTP status code, or zero when the request never
	// completed.
	StatusCode int
	// Status is the status line or provider error message.
	Status string
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sender: %s delivery failed: %s", e.Transport, e.Status)
	}
	return fmt.Sprintf("sender: %s delivery failed: %s", e.Transport, e.Status)
}

// Envelope is the JSON body POSTed to webhook endpoints.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// defaultTimeout bounds outbound calls when the caller does not supply a
// configured HTTP client. Every sender call also honors ctx cancellation.
const defaultTimeout = 10 * time.Second

func defaultClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}
