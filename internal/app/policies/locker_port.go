package policies

import (
	"context"
	"errors"
)

var ErrLockTimeout = errors.New("policies: timed out waiting for lock")

// Locker provides exclusive sections keyed by entity, such as "resource:<id>".
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func ResourceLockKey(id string) string {
	return "resource:" + id
}

func ConversationLockKey(id string) string {
	return "conversation:" + id
}
