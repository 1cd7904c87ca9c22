package translate

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"rentguru/internal/app/policies"
)

// Cache stores translations by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cached serves repeated translations from Cache. Cache failures fall
// through to Next.
type Cached struct {
	Next   policies.Translator
	Cache  Cache
	TTL    time.Duration
	Logger *slog.Logger
}

// Key derives the cache key from the target language and a BLAKE2b digest of the text.
func Key(text, targetLanguage string) string {
	sum := blake2b.Sum256([]byte(text))
	return "translation:" + strings.ToLower(targetLanguage) + ":" + hex.EncodeToString(sum[:])
}

func (c *Cached) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	key := Key(text, targetLanguage)
	if v, ok, err := c.Cache.Get(ctx, key); err != nil {
		c.log().WarnContext(ctx, "translation cache read failed", "error", err)
	} else if ok {
		return v, nil
	}
	out, err := c.Next.Translate(ctx, text, targetLanguage)
	if err != nil {
		return "", err
	}
	if err := c.Cache.Set(ctx, key, out, c.TTL); err != nil {
		c.log().WarnContext(ctx, "translation cache write failed", "error", err)
	}
	return out, nil
}

func (c *Cached) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

type entry struct {
	value   string
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	Now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), Now: time.Now}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !m.Now().Before(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

var _ policies.Translator = (*Cached)(nil)
