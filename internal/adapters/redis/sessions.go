package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"voice_review/internal/domain"
)

const sessionPrefix = "session:"

// Sessions keeps review sessions as JSON under session:<sender> so several
// processes can share conversation state. The TTL only backs up the sweep.
type Sessions struct {
	c   redis.UniversalClient
	ttl time.Duration
}

func NewSessions(c redis.UniversalClient, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{c: c, ttl: ttl}
}

func (s *Sessions) Get(ctx context.Context, sender string) (*domain.ReviewSession, error) {
	b, err := s.c.Get(ctx, sessionPrefix+sender).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var out domain.ReviewSession
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sender, err)
	}
	return &out, nil
}

func (s *Sessions) Put(ctx context.Context, rs *domain.ReviewSession) error {
	b, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, sessionPrefix+rs.Sender, b, s.ttl).Err()
}

func (s *Sessions) Delete(ctx context.Context, sender string) error {
	return s.c.Del(ctx, sessionPrefix+sender).Err()
}

func (s *Sessions) List(ctx context.Context) ([]*domain.ReviewSession, error) {
	var out []*domain.ReviewSession
	iter := s.c.Scan(ctx, 0, sessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		sender := strings.TrimPrefix(iter.Val(), sessionPrefix)
		rs, err := s.Get(ctx, sender)
		if errors.Is(err, domain.ErrNotFound) {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan sessions: %w", err)
	}
	return out, nil
}
