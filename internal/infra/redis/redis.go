// Package redis backs the shared realtime state: presence, cross-instance
// fan-out, distributed locks and the translation cache.
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "rentguru:"

// Connect initializes a client from URL or host:port input.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	var client *goredis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = goredis.NewClient(opt)
	} else {
		client = goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
