package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/lsendel/relay/outbox"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace, so one
// misbehaving handler cannot take down the dispatch loop.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, ev *outbox.Event, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("event handler panicked",
					slog.String("event_id", ev.ID.String()),
					slog.String("type", ev.Type),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic processing event %s: %v", ev.Type, r)
			}
		}()
		return next(ctx)
	}
}
