package memory

import (
	"context"
	"sync"

	appoutbox "rentguru/internal/app/outbox"
)

// Outbox buffers records until Flush moves them to the published log.
type Outbox struct {
	mu        sync.Mutex
	pending   []appoutbox.EventRecord
	published []appoutbox.EventRecord
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, record)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, o.pending...)
	o.pending = nil
	return nil
}

// Published returns the names of flushed events in order.
func (o *Outbox) Published() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.published))
	for i, rec := range o.published {
		out[i] = rec.Name
	}
	return out
}

var _ appoutbox.Outbox = (*Outbox)(nil)
