package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/cache/memory"
	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/portfolio"
)

type MockSnapshotter struct {
	mock.Mock
}

func (m *MockSnapshotter) Snapshot(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	args := m.Called(ctx, symbols)
	quotes, _ := args.Get(0).([]domain.Quote)
	return quotes, args.Error(1)
}

type mapPriceCache struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newMapPriceCache() *mapPriceCache {
	return &mapPriceCache{prices: make(map[string]decimal.Decimal)}
}

func (c *mapPriceCache) SetPrice(_ context.Context, symbol string, price decimal.Decimal, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
	return nil
}

func (c *mapPriceCache) GetPrice(_ context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[symbol]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

func (c *mapPriceCache) GetPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func newSession() *SessionService {
	return NewSessionService(portfolio.NewBook(portfolio.Options{}), memory.NewStateStore(), nil, nil, "USD", testLogger())
}

func TestLoadSnapshotFeedsSession(t *testing.T) {
	ctx := context.Background()
	snap := new(MockSnapshotter)
	snap.On("Snapshot", mock.Anything, []string{"AAPL", "MSFT"}).Return([]domain.Quote{
		{Symbol: "AAPL", Price: d("150"), PreviousClose: d("148")},
		{Symbol: "MSFT", Price: d("300")},
	}, nil)

	session := newSession()
	cache := newMapPriceCache()
	svc := NewPriceService([]string{"AAPL", "MSFT"}, snap, testLogger()).WithCache(cache).WithSink(session)

	require.NoError(t, svc.LoadSnapshot(ctx))

	quotes := session.Quotes()
	require.Len(t, quotes, 2)
	assert.True(t, cache.prices["AAPL"].Equal(d("150")))
	snap.AssertExpectations(t)
}

func TestLoadSnapshotPublishesQuotes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus()
	events, err := bus.Subscribe(ctx, domain.ChannelPrices)
	require.NoError(t, err)

	snap := new(MockSnapshotter)
	snap.On("Snapshot", mock.Anything, []string{"AAPL"}).Return([]domain.Quote{
		{Symbol: "AAPL", Price: d("150"), PreviousClose: d("148")},
	}, nil)

	svc := NewPriceService([]string{"AAPL"}, snap, testLogger()).WithPublisher(bus, "finnhub")
	require.NoError(t, svc.LoadSnapshot(ctx))

	select {
	case raw := <-events:
		var ev domain.PriceEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, domain.PriceEventSnapshot, ev.Event)
		require.Len(t, ev.Quotes, 1)
		assert.True(t, ev.Quotes[0].PreviousClose.Equal(d("148")))
	case <-time.After(time.Second):
		t.Fatal("no snapshot event")
	}
}

func TestLoadSnapshotUnavailableKeepsRestoredQuotes(t *testing.T) {
	ctx := context.Background()
	snap := new(MockSnapshotter)
	snap.On("Snapshot", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: timeout", domain.ErrFeedUnavailable))

	session := newSession()
	session.SetQuotes(ctx, []domain.Quote{{Symbol: "AAPL", Price: d("140")}})

	svc := NewPriceService(domain.DefaultSymbols, snap, testLogger()).WithSink(session)
	require.NoError(t, svc.LoadSnapshot(ctx))

	quotes := session.Quotes()
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Price.Equal(d("140")))
}

func TestLoadSnapshotOtherErrorsPropagate(t *testing.T) {
	snap := new(MockSnapshotter)
	snap.On("Snapshot", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	svc := NewPriceService(domain.DefaultSymbols, snap, testLogger())
	assert.Error(t, svc.LoadSnapshot(context.Background()))
}

func TestLoadSnapshotWithoutSnapshotter(t *testing.T) {
	svc := NewPriceService(domain.DefaultSymbols, nil, testLogger())
	assert.NoError(t, svc.LoadSnapshot(context.Background()))
}

func TestHandleTicksPublishesAndForwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus()
	events, err := bus.Subscribe(ctx, domain.ChannelPrices)
	require.NoError(t, err)

	session := newSession()
	session.SetQuotes(ctx, []domain.Quote{{Symbol: "AAPL", Price: d("150")}})

	svc := NewPriceService(domain.DefaultSymbols, nil, testLogger()).
		WithPublisher(bus, "finnhub").
		WithSink(session)

	svc.HandleTicks(ctx, []domain.Tick{{Symbol: "AAPL", Price: d("151.5")}})

	q := session.Quotes()
	require.Len(t, q, 1)
	assert.True(t, q[0].Price.Equal(d("151.5")))
	assert.True(t, q[0].ChangePercent.Equal(d("1")))

	select {
	case raw := <-events:
		var ev domain.PriceEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, "ticks", ev.Event)
		assert.Equal(t, "finnhub", ev.Source)
		require.Len(t, ev.Ticks, 1)
		assert.True(t, ev.Ticks[0].Price.Equal(d("151.5")))
	case <-time.After(time.Second):
		t.Fatal("no price event")
	}
}

func TestHandleTicksIgnoresEmptyBatch(t *testing.T) {
	cache := newMapPriceCache()
	svc := NewPriceService(domain.DefaultSymbols, nil, testLogger()).WithCache(cache)
	svc.HandleTicks(context.Background(), nil)
	assert.Empty(t, cache.prices)
}
