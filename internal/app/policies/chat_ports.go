package policies

import (
	"context"

	"rentguru/internal/domain/chat"
)

// Member is one live connection to a conversation.
type Member struct {
	ConnID   string `json:"conn_id"`
	UserID   string `json:"user_id"`
	Language string `json:"language"`
}

// Presence tracks who is connected to which conversation across instances.
type Presence interface {
	Join(ctx context.Context, conversationID chat.ConversationID, m Member) error
	Leave(ctx context.Context, conversationID chat.ConversationID, connID string) error
	Members(ctx context.Context, conversationID chat.ConversationID) ([]Member, error)
}

// Delivery is a frame for a conversation group. An empty Language targets every member.
type Delivery struct {
	ConversationID chat.ConversationID `json:"conversation_id"`
	Language       string              `json:"language,omitempty"`
	Frame          []byte              `json:"frame"`
}

// Broadcaster fans deliveries out to every instance holding members of the conversation.
type Broadcaster interface {
	Publish(ctx context.Context, d Delivery) error
	Subscribe(ctx context.Context, conversationID chat.ConversationID) (<-chan Delivery, func(), error)
}

type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// AttachmentStore keeps binary chat attachments and returns a public URL.
type AttachmentStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// MessagePublisher pushes a freshly stored message to the live channel.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, m *chat.Message) error
}
