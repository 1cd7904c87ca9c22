package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/chat"
)

// Broadcaster fans deliveries out through Redis pub/sub so members connected
// to other instances receive them.
type Broadcaster struct {
	client *goredis.Client
	Buffer int
	Logger *slog.Logger
}

func NewBroadcaster(client *goredis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{client: client, Buffer: 64, Logger: logger}
}

func channelName(id chat.ConversationID) string {
	return keyPrefix + "conversation:" + string(id)
}

func (b *Broadcaster) Publish(ctx context.Context, d policies.Delivery) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelName(d.ConversationID), raw).Err()
}

// Subscribe streams deliveries of one conversation until cancel is called
// or ctx ends. Slow receivers drop deliveries instead of stalling the relay.
func (b *Broadcaster) Subscribe(ctx context.Context, id chat.ConversationID) (<-chan policies.Delivery, func(), error) {
	sub := b.client.Subscribe(ctx, channelName(id))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	out := make(chan policies.Delivery, b.Buffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var d policies.Delivery
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					b.log().Warn("bad delivery payload", "conversation_id", id, "error", err)
					continue
				}
				select {
				case out <- d:
				default:
					b.log().Warn("delivery dropped, subscriber is slow", "conversation_id", id)
				}
			}
		}
	}()
	return out, cancel, nil
}

func (b *Broadcaster) log() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

var _ policies.Broadcaster = (*Broadcaster)(nil)
