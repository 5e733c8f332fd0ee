package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// LockManager is an in-process domain.LockManager. TTLs are honoured for
// Acquire; Hold keeps the lock until released.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]time.Time)}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if exp, ok := lm.locks[key]; ok && (exp.IsZero() || time.Now().Before(exp)) {
		return nil, domain.ErrLockHeld
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	lm.locks[key] = exp

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			if lm.locks[key] == exp {
				delete(lm.locks, key)
			}
			lm.mu.Unlock()
		})
	}, nil
}

// Hold takes key without expiry until release is called or ctx is done.
func (lm *LockManager) Hold(ctx context.Context, key string, _ time.Duration) (func(), error) {
	unlock, err := lm.Acquire(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, unlock)
	return func() {
		stop()
		unlock()
	}, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
