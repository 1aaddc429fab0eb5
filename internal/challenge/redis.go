package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "enroll:nonce:"

// RedisStore backs the challenge store with Redis so several relay instances
// can share one nonce space. Eviction rides on the key TTL; Get still checks
// the stored expiry so the semantics match MemoryStore exactly.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(deviceID uuid.UUID) string {
	return keyPrefix + deviceID.String()
}

func (s *RedisStore) Put(ctx context.Context, deviceID uuid.UUID, ch Challenge) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.client.Set(ctx, key(deviceID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, deviceID uuid.UUID) (*Challenge, error) {
	payload, err := s.client.Get(ctx, key(deviceID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	var ch Challenge
	if err := json.Unmarshal(payload, &ch); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	if ch.Expired(time.Now()) {
		return nil, nil
	}
	return &ch, nil
}

func (s *RedisStore) Remove(ctx context.Context, deviceID uuid.UUID) error {
	if err := s.client.Del(ctx, key(deviceID)).Err(); err != nil {
		return fmt.Errorf("del challenge: %w", err)
	}
	return nil
}
