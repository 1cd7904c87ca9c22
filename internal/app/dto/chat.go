package dto

import (
	"time"

	"rentguru/internal/domain/chat"
)

type ConversationView struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	RequestID    string   `json:"request_id,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	Participants []string `json:"participants"`
}

func Conversation(c *chat.Conversation) ConversationView {
	return ConversationView{
		ID:           string(c.ID),
		Kind:         string(c.Kind),
		RequestID:    string(c.RequestID),
		Topic:        c.Topic,
		Participants: append([]string(nil), c.Participants...),
	}
}

type MessageView struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	AttachmentURL  string     `json:"attachment_url,omitempty"`
	Structured     bool       `json:"structured,omitempty"`
	Deleted        bool       `json:"deleted,omitempty"`
	Read           bool       `json:"read"`
	Language       string     `json:"language,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

func Message(m *chat.Message) MessageView {
	return MessageView{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		Content:        m.Content,
		AttachmentURL:  m.AttachmentURL,
		Structured:     m.Structured,
		Deleted:        m.Deleted,
		Read:           m.Read,
		Language:       m.Language,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
	}
}

type UnreadView struct {
	Count int `json:"count"`
}
