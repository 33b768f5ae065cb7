package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/lsendel/relay/outbox"
)

// Logging returns middleware that logs event processing start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, ev *outbox.Event, next Handler) error {
		logger.Info("event processing started",
			slog.String("event_id", ev.ID.String()),
			slog.String("type", ev.Type),
			slog.Int("attempts", ev.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("event processing failed",
				slog.String("event_id", ev.ID.String()),
				slog.String("type", ev.Type),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("event processed",
				slog.String("event_id", ev.ID.String()),
				slog.String("type", ev.Type),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
