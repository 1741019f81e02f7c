package middleware

import (
	"context"
	"log/slog"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/outbox"
)

// OutboxFlush hands the events a committed command recorded (proposal.submitted,
// proposal.approved, proposal.executed and so on) to the outbox for delivery.
// The command has already committed by then, so a flush error is logged and
// the result still returned; undelivered records stay queued for the next flush.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				logger.WarnContext(ctx, "outbox flush failed", "command", cmd.Key(), "error", err)
			}
			return res, nil
		})
	}
}
