package policies

import "context"

// Notifier delivers out-of-band notifications. Callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, userID, text, link string) error
}
