// Package redisad keeps review sessions, the voice-note log and the catalog
// read cache in Redis so the api and ingestor processes share them.
package redisad

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func NewClient(addr, pass string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// Open returns a client that has answered a PING.
func Open(ctx context.Context, addr, pass string, db int) (*redis.Client, error) {
	c := NewClient(addr, pass, db)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}
