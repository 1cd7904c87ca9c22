package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/chat"
)

// These tests run against a real server when REDIS_TEST_ADDR is set.
func testClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client, err := Connect(context.Background(), addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPresence(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	p := NewPresence(client)
	id := chat.ConversationID("presence-" + uuid.NewString())

	require.NoError(t, p.Join(ctx, id, policies.Member{ConnID: "c1", UserID: "renter", Language: "ru"}))
	require.NoError(t, p.Join(ctx, id, policies.Member{ConnID: "c2", UserID: "owner", Language: "en"}))
	require.NoError(t, p.Join(ctx, id, policies.Member{ConnID: "c2", UserID: "owner", Language: "en"}))
	members, err := p.Members(ctx, id)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, p.Leave(ctx, id, "c1"))
	members, err = p.Members(ctx, id)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "owner", members[0].UserID)
}

func TestBroadcasterAcrossSubscribers(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	b := NewBroadcaster(client, nil)
	id := chat.ConversationID("fanout-" + uuid.NewString())

	ch1, cancel1, err := b.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := b.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, b.Publish(ctx, policies.Delivery{ConversationID: id, Language: "en", Frame: []byte(`{"type":"message"}`)}))
	for _, ch := range []<-chan policies.Delivery{ch1, ch2} {
		select {
		case d := <-ch:
			assert.Equal(t, "en", d.Language)
			assert.JSONEq(t, `{"type":"message"}`, string(d.Frame))
		case <-time.After(2 * time.Second):
			t.Fatal("delivery not received")
		}
	}
}

func TestLockerExcludesAndTimesOut(t *testing.T) {
	client := testClient(t)
	l := NewLocker(client, 5*time.Second)
	key := "resource:" + uuid.NewString()

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, policies.ErrLockTimeout)

	unlock()
	unlock2, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock2()
}

func TestTranslationCache(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	c := NewTranslationCache(client)
	key := "test:" + uuid.NewString()

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Set(ctx, key, "привет", time.Minute))
	v, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "привет", v)
}
