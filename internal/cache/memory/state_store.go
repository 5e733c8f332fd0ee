package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// StateStore keeps the session record in memory, encoded as JSON so callers
// never share maps with the store.
type StateStore struct {
	mu   sync.Mutex
	data []byte
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// Load returns the saved state or domain.ErrNotFound.
func (s *StateStore) Load(_ context.Context) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return domain.State{}, domain.ErrNotFound
	}
	var st domain.State
	if err := json.Unmarshal(s.data, &st); err != nil {
		return domain.State{}, fmt.Errorf("memory: decode state: %w", err)
	}
	return st, nil
}

// Save replaces the saved state.
func (s *StateStore) Save(_ context.Context, st domain.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("memory: encode state: %w", err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
