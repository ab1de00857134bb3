package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jakechorley/incident-desk/pkg/core/model"
)

// RedisStore keeps sessions in Redis with a fixed TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (s *RedisStore) Create(ctx context.Context, principal model.Principal) (string, error) {
	data, err := json.Marshal(principal)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	token := uuid.NewString()
	if err := s.client.Set(ctx, sessionKey(token), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (model.Principal, error) {
	value, err := s.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Principal{}, ErrNotFound
	}
	if err != nil {
		return model.Principal{}, fmt.Errorf("failed to load session: %w", err)
	}

	var principal model.Principal
	if err := json.Unmarshal([]byte(value), &principal); err != nil {
		return model.Principal{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return principal, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
