package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"github.com/commonroom/commonroom/internal/models"
)

// SlotStore is the durable key-value slot holding the active identity
// snapshot. It is read once at startup, written on login/signup and cleared
// on logout.
type SlotStore interface {
	Save(ctx context.Context, identity *models.Identity) error
	// Load returns (nil, nil) when the slot is empty. A garbled snapshot is
	// treated as an empty slot.
	Load(ctx context.Context) (*models.Identity, error)
	Clear(ctx context.Context) error
}

// RedisSlotStore keeps the snapshot as JSON under a single key.
type RedisSlotStore struct {
	client *redis.Client
	key    string
}

func NewRedisSlotStore(client *redis.Client, key string) *RedisSlotStore {
	return &RedisSlotStore{client: client, key: key}
}

func (s *RedisSlotStore) Save(ctx context.Context, identity *models.Identity) error {
	payload, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("save session slot: %w", err)
	}
	return nil
}

func (s *RedisSlotStore) Load(ctx context.Context) (*models.Identity, error) {
	payload, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session slot: %w", err)
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(payload), &identity); err != nil || identity.ID == "" {
		return nil, nil
	}
	return &identity, nil
}

func (s *RedisSlotStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session slot: %w", err)
	}
	return nil
}

// MemorySlotStore backs tests and redis-less runs.
type MemorySlotStore struct {
	mu       sync.Mutex
	identity *models.Identity
}

func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{}
}

func (s *MemorySlotStore) Save(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *identity
	s.identity = &snapshot
	return nil
}

func (s *MemorySlotStore) Load(_ context.Context) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil, nil
	}
	snapshot := *s.identity
	return &snapshot, nil
}

func (s *MemorySlotStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	return nil
}
