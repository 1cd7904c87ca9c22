package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TranslationCache implements translate.Cache.
type TranslationCache struct {
	client *goredis.Client
}

func NewTranslationCache(client *goredis.Client) *TranslationCache {
	return &TranslationCache{client: client}
}

func (c *TranslationCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *TranslationCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}
