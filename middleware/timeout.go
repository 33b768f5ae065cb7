package middleware

import (
	"context"
	"time"

	"github.com/lsendel/relay/outbox"
)

// Timeout returns middleware that enforces a per-event execution deadline.
// When the deadline is exceeded the context is cancelled and the handler
// should return context.DeadlineExceeded. A non-positive duration disables
// the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, ev *outbox.Event, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
