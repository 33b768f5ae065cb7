package relay

import "time"

// Config holds the tuning knobs shared by the dispatch loops. Each loop
// reads the fields relevant to it; zero values fall back to the defaults.
type Config struct {
	// JobBatchSize is the maximum number of job events claimed per tick of
	// the generic job loop.
	JobBatchSize int

	// JobRetryDelay is how long a failed job event waits before it becomes
	// claimable again.
	JobRetryDelay time.Duration

	// JobMaxAttempts bounds retries on the job loop. Zero means unbounded:
	// a persistently failing event stays pending until an operator
	// intervenes.
	JobMaxAttempts int

	// NotifyBatchSize is the maximum number of notification events claimed
	// per tick of the notification loop.
	NotifyBatchSize int

	// NotifyRetryDelay is the delay before a notification event whose
	// delivery or channel resolution failed becomes claimable again.
	// The default is zero: the row is immediately re-claimable on the next
	// tick, which is a deliberately tight retry loop at the cost of
	// possible hot-looping on a persistently broken row.
	NotifyRetryDelay time.Duration

	// SendTimeout bounds each outbound network call (webhook POST, Slack
	// POST, email provider call).
	SendTimeout time.Duration

	// TickDeadline bounds a whole RunOnce invocation so one unresponsive
	// endpoint cannot stall the dispatcher indefinitely. Zero disables it.
	TickDeadline time.Duration

	// PollInterval is how often the worker pool ticks each loop.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the reference defaults.
func DefaultConfig() Config {
	return Config{
		JobBatchSize:     10,
		JobRetryDelay:    120 * time.Second,
		JobMaxAttempts:   0,
		NotifyBatchSize:  20,
		NotifyRetryDelay: 0,
		SendTimeout:      10 * time.Second,
		TickDeadline:     2 * time.Minute,
		PollInterval:     5 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}
