package middleware

import (
	"context"
	"log/slog"
	"time"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/queries"
)

// Logging records each dispatched command with its duration and outcome.
func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "duration", time.Since(start)}
			if err != nil {
				logger.WarnContext(ctx, "command failed", append(attrs, "error", err)...)
				return nil, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}

func QueryLogging(logger *slog.Logger) QueryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, q)
			if err != nil {
				logger.WarnContext(ctx, "query failed", "query", q.Key(), "duration", time.Since(start), "error", err)
				return nil, err
			}
			return res, nil
		})
	}
}
