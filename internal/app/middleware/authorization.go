package middleware

import (
	"context"
	"errors"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/queries"
)

var ErrUnauthenticated = errors.New("middleware: an authenticated user is required")

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// Actored is implemented by messages issued on behalf of a user.
type Actored interface {
	ActorID() string
}

// RequireActor refuses actored messages that carry no user. Messages without an
// actor (webhooks, scheduled jobs) pass through.
type RequireActor struct{}

func (RequireActor) Authorize(_ context.Context, message any) error {
	if m, ok := message.(Actored); ok && m.ActorID() == "" {
		return ErrUnauthenticated
	}
	return nil
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return nextFn(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return nextFn(ctx, q)
		})
	}
}
