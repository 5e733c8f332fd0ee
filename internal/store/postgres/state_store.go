package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// StateStore implements domain.StateStore as one JSONB row in session_state
// keyed by domain.StateKey.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Load reads the session record, or returns domain.ErrNotFound.
func (s *StateStore) Load(ctx context.Context) (domain.State, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM session_state WHERE key = $1`, domain.StateKey,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.State{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("postgres: load state: %w", err)
	}

	var st domain.State
	if err := json.Unmarshal(payload, &st); err != nil {
		return domain.State{}, fmt.Errorf("postgres: decode state: %w", err)
	}
	return st, nil
}

// Save upserts the session record.
func (s *StateStore) Save(ctx context.Context, st domain.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("postgres: encode state: %w", err)
	}

	const query = `
		INSERT INTO session_state (key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, domain.StateKey, payload); err != nil {
		return fmt.Errorf("postgres: save state: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
