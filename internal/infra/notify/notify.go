// Package notify delivers user notifications over email and push, with a
// log sink for local runs.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"rentguru/internal/app/policies"
)

// Contact is how a user can be reached outside the app.
type Contact struct {
	UserID       string   `json:"user_id"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	DeviceTokens []string `json:"device_tokens,omitempty"`
}

type Directory interface {
	Contact(ctx context.Context, userID string) (Contact, bool, error)
}

// StaticDirectory is a Directory over contacts known at startup.
type StaticDirectory struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewStaticDirectory(contacts ...Contact) *StaticDirectory {
	d := &StaticDirectory{contacts: make(map[string]Contact, len(contacts))}
	for _, c := range contacts {
		d.Put(c)
	}
	return d
}

func (d *StaticDirectory) Put(c Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[c.UserID] = c
}

func (d *StaticDirectory) Contact(ctx context.Context, userID string) (Contact, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[userID]
	return c, ok, nil
}

// Log writes notifications to the logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, userID, text, link string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "user_id", userID, "text", text, "link", link)
	return nil
}

// Fanout sends every notification through all sinks and joins their errors.
type Fanout []policies.Notifier

func (f Fanout) Notify(ctx context.Context, userID, text, link string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, userID, text, link); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func absolute(baseURL, link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(link, "/")
}

var (
	_ policies.Notifier = Log{}
	_ policies.Notifier = Fanout{}
)
