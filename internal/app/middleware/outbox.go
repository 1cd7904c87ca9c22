package middleware

import (
	"context"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/outbox"
)

// OutboxFlush tags recorded events with the command key and flushes buffered
// records before the surrounding unit commits.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			ctx = outbox.WithCommand(ctx, cmd.Key())
			res, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
