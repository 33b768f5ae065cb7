package job

import "github.com/lsendel/relay"

// Kind identifies a background job type. The set is closed: the claim
// query only ever asks for known kinds, and enqueueing an unknown kind is
// rejected up front.
type Kind string

const (
	// KindEnrichment pulls provider metadata into a freshly connected
	// integration.
	KindEnrichment Kind = "integration_enrichment"
	// KindScoring runs the content scoring pipeline over a crawled site.
	KindScoring Kind = "content_scoring"
	// KindSummary generates the periodic summary report for a project.
	KindSummary Kind = "summary_generation"
)

// Kinds lists every valid job kind.
func Kinds() []Kind {
	return []Kind{KindEnrichment, KindScoring, KindSummary}
}

// ParseKind validates a raw type string against the closed kind set.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindEnrichment, KindScoring, KindSummary:
		return Kind(s), nil
	}
	return "", relay.ErrUnknownKind
}

// String returns the kind's wire representation, which doubles as the
// outbox event type.
func (k Kind) String() string { return string(k) }
