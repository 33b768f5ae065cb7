package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// Block is one element of a Slack Block Kit payload.
type Block struct {
	Type string     `json:"type"`
	Text *BlockText `json:"text,omitempty"`
}

// BlockText is the text object inside a block.
type BlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackMessage is the incoming-webhook payload: either plain text or a
// block list.
type slackMessage struct {
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Formatter renders the section text for one logical event type.
type Formatter func(data map[string]any) string

// Slack delivers events to Slack incoming webhooks as block-structured
// messages: a header block naming the event and a section block produced
// by an event-type-specific formatter.
type Slack struct {
	client     *http.Client
	formatters map[string]Formatter
}

// SlackOption configures a Slack sender.
type SlackOption func(*Slack)

// WithSlackClient sets the HTTP client.
func WithSlackClient(c *http.Client) SlackOption {
	return func(s *Slack) { s.client = c }
}

// WithFormatter registers or overrides the formatter for one event type.
func WithFormatter(eventType string, f Formatter) SlackOption {
	return func(s *Slack) { s.formatters[eventType] = f }
}

// NewSlack creates a Slack sender with the built-in formatters.
func NewSlack(opts ...SlackOption) *Slack {
	s := &Slack{
		client: defaultClient(),
		formatters: map[string]Formatter{
			"crawl_completed":     formatCrawlCompleted,
			"score_drop":          formatScoreDrop,
			"quick_win":           formatQuickWin,
			"competitor_activity": formatCompetitorActivity,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts a header + section block message for the event. Unrecognized
// event types fall back to a generic key/value dump of the payload.
func (s *Slack) Send(ctx context.Context, url, eventType string, data map[string]any) error {
	format, ok := s.formatters[eventType]
	if !ok {
		format = formatGeneric
	}

	msg := slackMessage{
		Blocks: []Block{
			{Type: "header", Text: &BlockText{Type: "plain_text", Text: headline(eventType)}},
			{Type: "section", Text: &BlockText{Type: "mrkdwn", Text: format(data)}},
		},
	}
	return s.post(ctx, url, msg)
}

// SendText posts a plain one-line text message. The legacy alert path
// uses this for Slack-detected targets.
func (s *Slack) SendText(ctx context.Context, url, text string) error {
	return s.post(ctx, url, slackMessage{Text: text})
}

func (s *Slack) post(ctx context.Context, url string, msg slackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sender: marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sender: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Transport: "slack", Status: err.Error()}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Transport: "slack", StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// IsSlackWebhookURL reports whether the target is a Slack incoming
// webhook endpoint. The legacy alert path uses this to choose between a
// one-line Slack text and a generic JSON envelope.
func IsSlackWebhookURL(url string) bool {
	return strings.HasPrefix(url, "https://hooks.slack.com/")
}

// Summary renders the compact one-line text used by legacy alert
// deliveries to Slack targets.
func Summary(eventType string, data map[string]any) string {
	if domain, ok := data["domain"].(string); ok && domain != "" {
		return fmt.Sprintf("%s: %s", headline(eventType), domain)
	}
	return headline(eventType)
}

// headline turns "score_drop" into "Score drop".
func headline(eventType string) string {
	if eventType == "" {
		return "Notification"
	}
	text := strings.ReplaceAll(eventType, "_", " ")
	return strings.ToUpper(text[:1]) + text[1:]
}

func formatCrawlCompleted(data map[string]any) string {
	domain, _ := data["domain"].(string)
	if pages, ok := numeric(data["pages"]); ok {
		return fmt.Sprintf("Crawl of *%s* completed: %d pages processed.", domain, pages)
	}
	return fmt.Sprintf("Crawl of *%s* completed.", domain)
}

func formatScoreDrop(data map[string]any) string {
	domain, _ := data["domain"].(string)
	provider, _ := data["provider"].(string)
	score, haveScore := numeric(data["score"])
	prev, havePrev := numeric(data["previous_score"])
	if haveScore && havePrev {
		return fmt.Sprintf("Visibility score for *%s* on %s dropped from %d to %d.", domain, provider, prev, score)
	}
	return fmt.Sprintf("Visibility score for *%s* on %s dropped.", domain, provider)
}

func formatQuickWin(data map[string]any) string {
	domain, _ := data["domain"].(string)
	if title, ok := data["title"].(string); ok && title != "" {
		return fmt.Sprintf("Quick win for *%s*: %s", domain, title)
	}
	return fmt.Sprintf("New quick win detected for *%s*.", domain)
}

func formatCompetitorActivity(data map[string]any) string {
	domain, _ := data["domain"].(string)
	if competitor, ok := data["competitor"].(string); ok && competitor != "" {
		return fmt.Sprintf("Competitor activity on *%s*: %s moved.", domain, competitor)
	}
	return fmt.Sprintf("Competitor activity detected for *%s*.", domain)
}

// formatGeneric dumps "key: value" lines in sorted key order so the
// output is stable.
func formatGeneric(data map[string]any) string {
	if len(data) == 0 {
		return "(no details)"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, data[k]))
	}
	return strings.Join(lines, "\n")
}

// numeric coerces the float64 produced by JSON decoding (or a native int)
// into an int.
func numeric(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
