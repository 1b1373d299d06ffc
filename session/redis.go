package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AnswerDotAI/ai-jup/core"
)

// RedisStore keeps each transcript in a Redis list of JSON-encoded turns.
// TTL is refreshed on every append so idle sessions expire.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStore creates a store over an existing Redis client. A zero ttl
// disables expiry.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...core.Content) error {
	if len(turns) == 0 {
		return nil
	}
	encoded := make([]any, 0, len(turns))
	for _, turn := range turns {
		b, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		encoded = append(encoded, b)
	}

	key := s.key(sessionID)
	if err := s.rdb.RPush(ctx, key, encoded...).Err(); err != nil {
		return fmt.Errorf("push turns to %s: %w", key, err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("refresh ttl on %s: %w", key, err)
		}
	}
	return nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]core.Content, error) {
	key := s.key(sessionID)
	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []core.Content{}, nil
		}
		return nil, fmt.Errorf("load transcript %s: %w", key, err)
	}

	turns := make([]core.Content, 0, len(rows))
	for i, row := range rows {
		var turn core.Content
		if err := json.Unmarshal([]byte(row), &turn); err != nil {
			return nil, fmt.Errorf("decode turn %d of %s: %w", i, key, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear transcript %s: %w", s.key(sessionID), err)
	}
	return nil
}
