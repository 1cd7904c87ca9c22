package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"rentguru/internal/domain/shared/events"
)

// Header names set on every record.
const (
	HeaderEventName = "event-name"
	HeaderCommand   = "command"
)

// EventRecord is a serialized domain event waiting to be relayed.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// Outbox stores records in the same transaction as the aggregates that produced them.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error)
}

type commandKey struct{}

// WithCommand tags events recorded under ctx with the operation that caused them.
func WithCommand(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, commandKey{}, name)
}

// CommandFrom returns the operation set by WithCommand.
func CommandFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(commandKey{}).(string)
	return name, ok && name != ""
}

// JSONEventEncoder stores the event struct as its JSON payload.
type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	newID := e.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}
	headers := map[string]string{HeaderEventName: ev.EventName()}
	if cmd, ok := CommandFrom(ctx); ok {
		headers[HeaderCommand] = cmd
	}
	return EventRecord{
		ID:         newID(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt().UTC(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}

// RecordSources drains every source into box, in argument order. A source is
// cleared only after all of its events were added.
func RecordSources(ctx context.Context, box Outbox, encoder EventEncoder, sources ...events.Source) error {
	if box == nil {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, ev := range src.PendingEvents() {
			rec, err := encoder.Encode(ctx, ev)
			if err != nil {
				return err
			}
			if err := box.Add(ctx, rec); err != nil {
				return err
			}
		}
		src.ClearEvents()
	}
	return nil
}
