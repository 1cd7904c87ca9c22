package middleware

import (
	"context"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/uow"
)

// Hooks must wrap Transaction. Release hooks run once the unit is closed;
// after-commit hooks run only on success, with a context that outlives the
// caller's cancellation.
func Hooks() CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if _, nested := uow.HooksFromContext(ctx); nested {
				return nextFn(ctx, cmd)
			}
			hooks := &uow.Hooks{}
			res, err := nextFn(uow.ContextWithHooks(ctx, hooks), cmd)
			hooks.Release()
			if err != nil {
				hooks.Discard()
				return nil, err
			}
			if err := hooks.RunAfterCommit(context.WithoutCancel(ctx)); err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
