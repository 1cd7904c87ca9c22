package memory

import (
	"context"
	"sync"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/chat"
)

// Presence tracks live members for a single instance.
type Presence struct {
	mu      sync.Mutex
	members map[chat.ConversationID][]policies.Member
}

func NewPresence() *Presence {
	return &Presence{members: make(map[chat.ConversationID][]policies.Member)}
}

func (p *Presence) Join(ctx context.Context, conversationID chat.ConversationID, m policies.Member) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.members[conversationID] {
		if existing.ConnID == m.ConnID {
			return nil
		}
	}
	p.members[conversationID] = append(p.members[conversationID], m)
	return nil
}

func (p *Presence) Leave(ctx context.Context, conversationID chat.ConversationID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.members[conversationID]
	for i, m := range list {
		if m.ConnID == connID {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.members, conversationID)
		return nil
	}
	p.members[conversationID] = list
	return nil
}

func (p *Presence) Members(ctx context.Context, conversationID chat.ConversationID) ([]policies.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]policies.Member(nil), p.members[conversationID]...), nil
}

// Broadcaster fans deliveries out to in-process subscribers. A subscriber that
// falls behind by more than its buffer drops frames rather than blocking publishers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chat.ConversationID]map[int]chan policies.Delivery
	nextID int
	Buffer int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chat.ConversationID]map[int]chan policies.Delivery), Buffer: 64}
}

func (b *Broadcaster) Publish(ctx context.Context, d policies.Delivery) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[d.ConversationID] {
		select {
		case ch <- d:
		default:
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, conversationID chat.ConversationID) (<-chan policies.Delivery, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := b.Buffer
	if size <= 0 {
		size = 64
	}
	ch := make(chan policies.Delivery, size)
	id := b.nextID
	b.nextID++
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[int]chan policies.Delivery)
	}
	b.subs[conversationID][id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[conversationID], id)
			if len(b.subs[conversationID]) == 0 {
				delete(b.subs, conversationID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

var (
	_ policies.Presence    = (*Presence)(nil)
	_ policies.Broadcaster = (*Broadcaster)(nil)
)
