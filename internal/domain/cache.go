package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StateStore loads and saves the persisted session record.
// Load returns ErrNotFound when nothing has been saved yet.
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	// Hold acquires the lock and keeps extending it until release is called
	// or ctx is done.
	Hold(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// SignalBus provides pub/sub messaging between components and processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channels.
const (
	ChannelPrices        = "prices"
	ChannelOrders        = "orders"
	ChannelPortfolio     = "portfolio"
	ChannelNotifications = "notifications"
)
