package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentguru/internal/domain/booking"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrNotParticipant       = errors.New("chat: you are not a participant of this conversation")
	ErrNotSender            = errors.New("chat: only the sender can change this message")
	ErrMessageDeleted       = errors.New("chat: message was deleted")
	ErrEmptyMessage         = errors.New("chat: message must have text or an attachment")
	ErrNotBookingChannel    = errors.New("chat: booking commands are only available in a booking conversation")
	ErrStructuredMessage    = errors.New("chat: booking cards cannot be edited")
)

type ConversationID string

type MessageID string

type Kind string

const (
	KindBooking Kind = "booking"
	KindSupport Kind = "support"
)

// Conversation binds one rental request, or one support topic, to its participants.
type Conversation struct {
	ID           ConversationID
	Kind         Kind
	RequestID    booking.RequestID
	OrganizerID  string
	OwnerID      string
	CreatorID    string
	Topic        string
	Description  string
	Participants []string
	// AwaitingOwnerSince is set by the first organizer message the owner has not answered yet.
	AwaitingOwnerSince *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewBookingConversation(id ConversationID, requestID booking.RequestID, organizerID, ownerID string, now time.Time) *Conversation {
	now = now.UTC()
	return &Conversation{
		ID:           id,
		Kind:         KindBooking,
		RequestID:    requestID,
		OrganizerID:  organizerID,
		OwnerID:      ownerID,
		Participants: []string{organizerID, ownerID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewSupportConversation(id ConversationID, creatorID, topic, description string, now time.Time) (*Conversation, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, booking.Validation("support topic is required")
	}
	now = now.UTC()
	return &Conversation{
		ID:           id,
		Kind:         KindSupport,
		CreatorID:    creatorID,
		Topic:        topic,
		Description:  strings.TrimSpace(description),
		Participants: []string{creatorID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CanAccess reports whether the actor may join the conversation. Staff may join any.
func (c *Conversation) CanAccess(actor booking.Actor) bool {
	if actor.Staff {
		return true
	}
	if c.Kind == KindSupport {
		return actor.UserID == c.CreatorID
	}
	return c.IsParticipant(actor.UserID)
}

func (c *Conversation) IsParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Recipients are the participants other than the sender.
func (c *Conversation) Recipients(senderID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != senderID {
			out = append(out, p)
		}
	}
	return out
}

// ObserveMessage tracks owner reply latency on booking conversations. It
// returns the delay when the message is the owner's first answer to a waiting
// organizer message.
func (c *Conversation) ObserveMessage(senderID string, at time.Time) (time.Duration, bool) {
	if c.Kind != KindBooking {
		return 0, false
	}
	at = at.UTC()
	switch senderID {
	case c.OrganizerID:
		if c.AwaitingOwnerSince == nil {
			c.AwaitingOwnerSince = &at
			c.UpdatedAt = at
		}
	case c.OwnerID:
		if c.AwaitingOwnerSince != nil {
			delay := at.Sub(*c.AwaitingOwnerSince)
			c.AwaitingOwnerSince = nil
			c.UpdatedAt = at
			return delay, true
		}
	}
	return 0, false
}

type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByRequest(ctx context.Context, requestID booking.RequestID) (*Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	Save(ctx context.Context, c *Conversation) error
}

// KindOf classifies chat failures with the booking error kinds.
func KindOf(err error) booking.Kind {
	switch {
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound):
		return booking.KindNotFound
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotSender):
		return booking.KindPermission
	case errors.Is(err, ErrEmptyMessage):
		return booking.KindValidation
	case errors.Is(err, ErrMessageDeleted), errors.Is(err, ErrNotBookingChannel), errors.Is(err, ErrStructuredMessage):
		return booking.KindConflict
	}
	return booking.KindOf(err)
}
