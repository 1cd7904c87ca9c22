package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"rentguru/internal/domain/booking"
)

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Content        string
	AttachmentURL  string
	Structured     bool
	Deleted        bool
	Read           bool
	Language       string
	CreatedAt      time.Time
	EditedAt       *time.Time
}

// NewMessage validates a free-text or attachment message.
func NewMessage(id MessageID, conversationID ConversationID, senderID, content, attachmentURL, language string, now time.Time) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && attachmentURL == "" {
		return nil, ErrEmptyMessage
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		AttachmentURL:  attachmentURL,
		Language:       language,
		CreatedAt:      now.UTC(),
	}, nil
}

// CanModify reports whether the actor may edit or delete the message.
func (m *Message) CanModify(actor booking.Actor) bool {
	return actor.Staff || actor.UserID == m.SenderID
}

func (m *Message) Edit(actor booking.Actor, content string, now time.Time) error {
	if !m.CanModify(actor) {
		return ErrNotSender
	}
	if m.Deleted {
		return ErrMessageDeleted
	}
	if m.Structured {
		return ErrStructuredMessage
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	at := now.UTC()
	m.Content = content
	m.EditedAt = &at
	return nil
}

// Delete is a soft delete; staff can still read the message.
func (m *Message) Delete(actor booking.Actor, now time.Time) error {
	if !m.CanModify(actor) {
		return ErrNotSender
	}
	if m.Deleted {
		return ErrMessageDeleted
	}
	at := now.UTC()
	m.Deleted = true
	m.EditedAt = &at
	return nil
}

// MarkRead flags the message read by a reader. Readers never mark their own messages.
func (m *Message) MarkRead(readerID string) bool {
	if m.SenderID == readerID || m.Read {
		return false
	}
	m.Read = true
	return true
}

// Page selects messages for load_previous_messages.
type Page struct {
	Offset         int
	Limit          int
	IncludeDeleted bool
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// MessageStore persists the message log of conversations. Mutate runs fn on
// the stored message under a per-message lock and persists the result only
// when fn returns nil.
type MessageStore interface {
	Append(ctx context.Context, m *Message) error
	Latest(ctx context.Context, conversationID ConversationID) (*Message, error)
	// List returns messages newest first.
	List(ctx context.Context, conversationID ConversationID, page Page) ([]*Message, error)
	Mutate(ctx context.Context, conversationID ConversationID, id MessageID, fn func(*Message) error) (*Message, error)
	CountUnread(ctx context.Context, conversationIDs []ConversationID, readerID string) (int, error)
}

// BookingCard is the structured message describing the state of a booking request.
type BookingCard struct {
	Status       booking.RequestStatus `json:"status"`
	OrganizerID  string                `json:"organizer_id"`
	ResourceID   string                `json:"vehicle_id"`
	ResourceKind string                `json:"vehicle_type"`
	StartDate    string                `json:"start_date"`
	EndDate      string                `json:"end_date"`
	StartTime    string                `json:"start_time,omitempty"`
	EndTime      string                `json:"end_time,omitempty"`
	TotalCost    string                `json:"total_cost"`
	DepositCost  string                `json:"deposit_cost"`
	DeliveryCost string                `json:"delivery_cost"`
	Delivery     bool                  `json:"delivery"`
	Amount       string                `json:"amount"`
	OnRequest    bool                  `json:"on_request"`
	DenyReason   string                `json:"denied_reason,omitempty"`
}

func CardFor(r *booking.RentalRequest) BookingCard {
	card := BookingCard{
		Status:       r.Status,
		OrganizerID:  r.OrganizerID,
		ResourceID:   string(r.ResourceID),
		ResourceKind: string(r.ResourceKind),
		StartDate:    r.Window.Dates.Start.Format("2006-01-02"),
		EndDate:      r.Window.Dates.End.Format("2006-01-02"),
		TotalCost:    r.TotalCost.Decimal(),
		DepositCost:  r.DepositCost.Decimal(),
		DeliveryCost: r.DeliveryCost.Decimal(),
		Delivery:     r.Delivery,
		Amount:       r.Financials.Payable.Decimal(),
		OnRequest:    r.OnRequest,
		DenyReason:   r.DenyReason,
	}
	if r.Window.StartTime != nil {
		card.StartTime = r.Window.StartTime.String()
	}
	if r.Window.EndTime != nil {
		card.EndTime = r.Window.EndTime.String()
	}
	return card
}

// NewCardMessage renders the booking card as a structured message sent on behalf of the organizer.
func NewCardMessage(id MessageID, conversationID ConversationID, r *booking.RentalRequest, now time.Time) (*Message, error) {
	raw, err := json.Marshal(CardFor(r))
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       r.OrganizerID,
		Content:        string(raw),
		Structured:     true,
		CreatedAt:      now.UTC(),
	}, nil
}
