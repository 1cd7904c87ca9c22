package memory

import (
	"context"
	"sort"
	"sync"

	"rentguru/internal/domain/chat"
)

// MessageStore keeps conversation logs in insertion order.
type MessageStore struct {
	mu   sync.Mutex
	logs map[chat.ConversationID][]*chat.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{logs: make(map[chat.ConversationID][]*chat.Message)}
}

func cloneMessage(m *chat.Message) *chat.Message {
	c := *m
	return &c
}

func (s *MessageStore) Append(ctx context.Context, m *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[m.ConversationID] = append(s.logs[m.ConversationID], cloneMessage(m))
	return nil
}

func (s *MessageStore) Latest(ctx context.Context, conversationID chat.ConversationID) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[conversationID]
	for i := len(log) - 1; i >= 0; i-- {
		if !log[i].Deleted {
			return cloneMessage(log[i]), nil
		}
	}
	return nil, chat.ErrMessageNotFound
}

func (s *MessageStore) List(ctx context.Context, conversationID chat.ConversationID, page chat.Page) ([]*chat.Message, error) {
	page = page.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[conversationID]
	out := make([]*chat.Message, 0, page.Limit)
	skipped := 0
	for i := len(log) - 1; i >= 0 && len(out) < page.Limit; i-- {
		if log[i].Deleted && !page.IncludeDeleted {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, cloneMessage(log[i]))
	}
	return out, nil
}

func (s *MessageStore) Mutate(ctx context.Context, conversationID chat.ConversationID, id chat.MessageID, fn func(*chat.Message) error) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.logs[conversationID] {
		if m.ID != id {
			continue
		}
		next := cloneMessage(m)
		if err := fn(next); err != nil {
			return nil, err
		}
		s.logs[conversationID][i] = next
		return cloneMessage(next), nil
	}
	return nil, chat.ErrMessageNotFound
}

func (s *MessageStore) CountUnread(ctx context.Context, conversationIDs []chat.ConversationID, readerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]chat.ConversationID(nil), conversationIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	count := 0
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		for _, m := range s.logs[id] {
			if !m.Read && !m.Deleted && m.SenderID != readerID {
				count++
			}
		}
	}
	return count, nil
}

var _ chat.MessageStore = (*MessageStore)(nil)
