package notify

import (
	"fmt"
	"sort"
	"strings"
)

// Template renders an email subject and plain-text body from the payload
// data of one event.
type Template func(data map[string]any) (subject, body string)

// Renderer maps email template names (the part of the event type after the
// "email:" prefix) to templates. Unknown templates fall back to a generic
// key/value rendering so a legacy row never fails on a missing template.
type Renderer struct {
	templates map[string]Template
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithTemplate registers or replaces the template for a name.
func WithTemplate(name string, t Template) RendererOption {
	return func(r *Renderer) { r.templates[name] = t }
}

// NewRenderer creates a renderer with the built-in templates.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		templates: map[string]Template{
			"crawl_completed":     renderCrawlCompleted,
			"score_drop":          renderScoreDrop,
			"quick_win":           renderQuickWin,
			"competitor_activity": renderCompetitorActivity,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces the subject and body for a template name.
func (r *Renderer) Render(name string, data map[string]any) (subject, body string) {
	if t, ok := r.templates[name]; ok {
		return t(data)
	}
	return renderFallback(name, data)
}

func renderCrawlCompleted(data map[string]any) (string, string) {
	domain, _ := data["domain"].(string)
	subject := fmt.Sprintf("Crawl completed for %s", domain)
	body := fmt.Sprintf("The crawl of %s has finished.\n\n%s\n", domain, detailLines(data))
	return subject, body
}

func renderScoreDrop(data map[string]any) (string, string) {
	domain, _ := data["domain"].(string)
	subject := fmt.Sprintf("Visibility score dropped for %s", domain)
	body := fmt.Sprintf("The visibility score for %s has dropped.\n\n%s\n", domain, detailLines(data))
	return subject, body
}

func renderQuickWin(data map[string]any) (string, string) {
	domain, _ := data["domain"].(string)
	subject := fmt.Sprintf("New quick win for %s", domain)
	body := fmt.Sprintf("A new quick win was detected for %s.\n\n%s\n", domain, detailLines(data))
	return subject, body
}

func renderCompetitorActivity(data map[string]any) (string, string) {
	domain, _ := data["domain"].(string)
	subject := fmt.Sprintf("Competitor activity on %s", domain)
	body := fmt.Sprintf("Competitor activity was detected on %s.\n\n%s\n", domain, detailLines(data))
	return subject, body
}

// renderFallback covers template names without a registered renderer.
func renderFallback(name string, data map[string]any) (string, string) {
	title := strings.ReplaceAll(name, "_", " ")
	if title == "" {
		title = "notification"
	}
	subject := strings.ToUpper(title[:1]) + title[1:]
	return subject, detailLines(data) + "\n"
}

// detailLines dumps "key: value" lines in sorted key order so the output
// is stable.
func detailLines(data map[string]any) string {
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
