package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/chat"
)

// Presence keeps the members of each conversation in a hash keyed by
// connection id. The hash expires when no instance refreshes it.
type Presence struct {
	client *goredis.Client
	TTL    time.Duration
}

func NewPresence(client *goredis.Client) *Presence {
	return &Presence{client: client, TTL: 6 * time.Hour}
}

func presenceKey(id chat.ConversationID) string {
	return keyPrefix + "presence:" + string(id)
}

func (p *Presence) Join(ctx context.Context, id chat.ConversationID, m policies.Member) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := presenceKey(id)
	_, err = p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, m.ConnID, raw)
		pipe.Expire(ctx, key, p.TTL)
		return nil
	})
	return err
}

func (p *Presence) Leave(ctx context.Context, id chat.ConversationID, connID string) error {
	return p.client.HDel(ctx, presenceKey(id), connID).Err()
}

func (p *Presence) Members(ctx context.Context, id chat.ConversationID) ([]policies.Member, error) {
	data, err := p.client.HGetAll(ctx, presenceKey(id)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]policies.Member, 0, len(data))
	for _, raw := range data {
		var m policies.Member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

var _ policies.Presence = (*Presence)(nil)
