package notify

import "fmt"

// Outcome classifies the result of one event's channel fan-out.
type Outcome int

const (
	// OutcomeNoChannels means no channel send was attempted. The event
	// still completes: the legacy delivery already succeeded by the time
	// the outcome is computed.
	OutcomeNoChannels Outcome = iota
	// OutcomeAllSucceeded means every attempted channel delivered.
	OutcomeAllSucceeded
	// OutcomePartial means at least one channel delivered and at least one
	// failed. The event completes; failures are visible in logs and hooks.
	OutcomePartial
	// OutcomeAllFailed means every attempted channel failed. The event is
	// marked terminally failed.
	OutcomeAllFailed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoChannels:
		return "no_channels"
	case OutcomeAllSucceeded:
		return "all_succeeded"
	case OutcomePartial:
		return "partial"
	case OutcomeAllFailed:
		return "all_failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Terminal reports whether the outcome marks the event failed.
func (o Outcome) Terminal() bool { return o == OutcomeAllFailed }

// resolveOutcome computes the fan-out outcome from the attempt tally.
// Channels skipped by type (email, slack_app) are not counted as attempts,
// so a no-op channel can never mask an all-failed batch.
func resolveOutcome(attempted, failed int) Outcome {
	switch {
	case attempted == 0:
		return OutcomeNoChannels
	case failed == 0:
		return OutcomeAllSucceeded
	case failed == attempted:
		return OutcomeAllFailed
	default:
		return OutcomePartial
	}
}
