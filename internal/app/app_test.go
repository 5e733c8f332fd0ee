package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/cache/memory"
	"github.com/alanyoungcy/papertrade/internal/config"
	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/platform/finnhub"
	"github.com/alanyoungcy/papertrade/internal/platform/polygon"
	"github.com/alanyoungcy/papertrade/internal/portfolio"
	"github.com/alanyoungcy/papertrade/internal/store/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Server.Enabled = false
	return &cfg
}

func TestBookOptions(t *testing.T) {
	cfg := memoryConfig()
	cfg.Market.Symbols = []string{"AAPL", "MSFT"}
	cfg.Market.InitialCash = 5000
	cfg.Feed.ChangeBaseline = "close"
	cfg.StopLoss.QuantityMode = "input"
	cfg.StopLoss.DefaultQuantity = 3

	opts := BookOptions(cfg)
	assert.Equal(t, []string{"AAPL", "MSFT"}, opts.Symbols)
	assert.True(t, opts.InitialCash.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, portfolio.BaselineClose, opts.Baseline)
	assert.Equal(t, portfolio.StopLossInput, opts.StopLossMode)
	assert.Equal(t, int64(3), opts.DefaultQuantity)
}

func TestWireMemoryBackend(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), memoryConfig(), testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.StateStore{}, deps.StateStore)
	assert.IsType(t, &memory.Bus{}, deps.SignalBus)
	assert.IsType(t, &memory.LockManager{}, deps.LockManager)
	assert.IsType(t, &memory.RateLimiter{}, deps.RateLimiter)
	assert.Nil(t, deps.Journal)
	assert.Nil(t, deps.Audit)
	assert.Nil(t, deps.PriceCache)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.Snapshotter)
	assert.NotNil(t, deps.Notifier)
}

func TestWireSQLiteBackendServesJournalAndAudit(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "state.db")

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &sqlite.Store{}, deps.StateStore)
	assert.IsType(t, &sqlite.Store{}, deps.Journal)
	assert.IsType(t, &sqlite.AuditLog{}, deps.Audit)
}

func TestWireFeedModeSkipsSessionStorage(t *testing.T) {
	cfg := memoryConfig()
	cfg.Mode = "feed"
	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.StateStore)
	assert.Nil(t, deps.Journal)
}

func TestNewSnapshotter(t *testing.T) {
	cfg := memoryConfig()

	snap, err := NewSnapshotter(cfg)
	require.NoError(t, err)
	assert.Nil(t, snap)

	cfg.Feed.APIKey = "fh"
	snap, err = NewSnapshotter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &finnhub.Client{}, snap)

	cfg.Feed.SnapshotProvider = "polygon"
	_, err = NewSnapshotter(cfg)
	assert.Error(t, err)

	cfg.Polygon.APIKey = "pg"
	snap, err = NewSnapshotter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &polygon.Client{}, snap)
}

func TestLoadSessionRestoresState(t *testing.T) {
	cfg := memoryConfig()
	a := New(cfg, testLogger())
	defer a.Close()

	deps, err := a.Dependencies(context.Background())
	require.NoError(t, err)
	require.NoError(t, deps.StateStore.Save(context.Background(), domain.State{
		Quotes: []domain.Quote{{Symbol: "AAPL", Price: decimal.NewFromInt(100)}},
		Orders: []domain.Order{{Symbol: "AAPL", Quantity: 5, Action: domain.ActionBuy, Price: decimal.NewFromInt(100)}},
		Cash:   decimal.NewNullDecimal(decimal.NewFromInt(99500)),
	}))

	session, _, err := a.LoadSession(context.Background())
	require.NoError(t, err)
	p := session.Portfolio()
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(99500)))
	assert.Equal(t, int64(5), p.Holdings["AAPL"])
}

func TestHoldSessionIsExclusive(t *testing.T) {
	a := New(memoryConfig(), testLogger())
	defer a.Close()
	deps, err := a.Dependencies(context.Background())
	require.NoError(t, err)

	release, err := a.holdSession(context.Background(), deps)
	require.NoError(t, err)

	_, err = a.holdSession(context.Background(), deps)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	release()
	release2, err := a.holdSession(context.Background(), deps)
	require.NoError(t, err)
	release2()
}

func TestAPIModeAppliesBusTicks(t *testing.T) {
	cfg := memoryConfig()
	cfg.Mode = "api"
	a := New(cfg, testLogger())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := a.Dependencies(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	payload, err := json.Marshal(domain.PriceEvent{
		Event: "ticks",
		Ticks: []domain.Tick{{Symbol: "AAPL", Price: decimal.NewFromInt(123)}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = deps.SignalBus.Publish(ctx, domain.ChannelPrices, payload)
		st, err := deps.StateStore.Load(ctx)
		if err != nil {
			return false
		}
		for _, q := range st.Quotes {
			if q.Symbol == "AAPL" && q.Price.Equal(decimal.NewFromInt(123)) {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("api mode did not stop")
	}
}
