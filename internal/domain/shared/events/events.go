package events

import "time"

// DomainEvent is a fact recorded by an aggregate. AggregateID becomes the
// broker partition key, so events of one aggregate stay ordered.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder is embedded by aggregates that publish through the outbox.
// Repositories reset it when they hand out a copy.
type EventRecorder struct {
	pending []DomainEvent
}

func (r *EventRecorder) Record(event DomainEvent) {
	if event != nil {
		r.pending = append(r.pending, event)
	}
}

func (r *EventRecorder) PendingEvents() []DomainEvent {
	return append([]DomainEvent(nil), r.pending...)
}

func (r *EventRecorder) ClearEvents() {
	r.pending = nil
}

// Source is implemented by anything embedding EventRecorder.
type Source interface {
	PendingEvents() []DomainEvent
	ClearEvents()
}
