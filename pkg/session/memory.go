package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jakechorley/incident-desk/pkg/core/model"
)

// MemoryStore keeps sessions in process. Used when no Redis address is configured;
// sessions are lost on restart.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(ttl, 10*time.Minute)}
}

func (s *MemoryStore) Create(_ context.Context, principal model.Principal) (string, error) {
	token := uuid.NewString()
	s.cache.SetDefault(token, principal)
	return token, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (model.Principal, error) {
	value, ok := s.cache.Get(token)
	if !ok {
		return model.Principal{}, ErrNotFound
	}
	return value.(model.Principal), nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.cache.Delete(token)
	return nil
}
