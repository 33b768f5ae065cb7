package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/outbox"
	"github.com/lsendel/relay/sender"
)

// deliverLegacy performs the direct single-recipient delivery for rows that
// predate channel-based routing. Fan-out-only rows (type "notification")
// have no legacy target and return immediately.
//
// An error here is a loop-level failure: the caller reschedules the whole
// row rather than tallying it against channels.
func (d *Dispatcher) deliverLegacy(ctx context.Context, ev *outbox.Event, payload outbox.DeliveryPayload) error {
	switch {
	case ev.Type == outbox.TypeNotification:
		return nil

	case ev.Type == outbox.TypeAlert:
		return d.deliverAlert(ctx, ev, payload)

	case strings.HasPrefix(ev.Type, outbox.TypePrefixEmail):
		template := strings.TrimPrefix(ev.Type, outbox.TypePrefixEmail)
		return d.deliverEmail(ctx, template, payload)

	case strings.HasPrefix(ev.Type, outbox.TypePrefixWebhook):
		eventName := strings.TrimPrefix(ev.Type, outbox.TypePrefixWebhook)
		return d.webhook.Send(ctx, payload.URL, "", eventName, payload.Data)
	}

	return fmt.Errorf("%w: %q", relay.ErrInvalidState, ev.Type)
}

// deliverAlert handles "webhook:alert" rows. Slack incoming-webhook targets
// get a compact one-line text; anything else gets a flattened JSON envelope
// with the data fields spread at the top level.
func (d *Dispatcher) deliverAlert(ctx context.Context, ev *outbox.Event, payload outbox.DeliveryPayload) error {
	eventName := ev.EventType
	if eventName == "" {
		eventName = "alert"
	}

	if sender.IsSlackWebhookURL(payload.URL) {
		return d.slack.SendText(ctx, payload.URL, sender.Summary(eventName, payload.Data))
	}

	flat := make(map[string]any, len(payload.Data)+2)
	for k, v := range payload.Data {
		flat[k] = v
	}
	flat["event"] = eventName
	flat["timestamp"] = d.clock.Now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("marshal alert envelope: %w", err)
	}
	return d.webhook.SendRaw(ctx, payload.URL, "", body)
}

// deliverEmail renders the template and sends through the configured email
// sender. Rows enqueued without an email sender wired are a deployment
// error, surfaced as a retryable failure so they are not silently dropped.
func (d *Dispatcher) deliverEmail(ctx context.Context, template string, payload outbox.DeliveryPayload) error {
	if d.email == nil {
		return relay.ErrNoEmailSender
	}
	subject, body := d.renderer.Render(template, payload.Data)
	return d.email.Send(ctx, payload.To, subject, body)
}
