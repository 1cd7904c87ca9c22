package policies

import (
	"context"
	"errors"

	"rentguru/internal/domain/booking"
)

var ErrInvalidToken = errors.New("policies: invalid or expired token")

// TokenVerifier resolves a bearer or channel token into the acting user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (booking.Actor, error)
}
