package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// StateStore implements domain.StateStore as a single JSON string value
// under domain.StateKey.
type StateStore struct {
	rdb *redis.Client
	key string
}

// NewStateStore creates a StateStore backed by the given Client.
func NewStateStore(c *Client) *StateStore {
	return &StateStore{rdb: c.Underlying(), key: domain.StateKey}
}

// Load reads the persisted state. It returns domain.ErrNotFound when no
// state has been saved.
func (s *StateStore) Load(ctx context.Context) (domain.State, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.State{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("redis: load state: %w", err)
	}

	var st domain.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.State{}, fmt.Errorf("redis: decode state: %w", err)
	}
	return st, nil
}

// Save overwrites the persisted state.
func (s *StateStore) Save(ctx context.Context, st domain.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: encode state: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: save state: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
