package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "papertrade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	st := domain.State{
		Quotes: []domain.Quote{{Symbol: "AAPL", Price: decimal.RequireFromString("150.5")}},
		Orders: []domain.Order{{ID: "o1", Symbol: "AAPL", Quantity: 2, Action: domain.ActionBuy, Price: decimal.RequireFromString("150.5")}},
		Cash:   decimal.NewNullDecimal(decimal.NewFromInt(99699)),
		StopLoss: map[string]decimal.Decimal{
			"AAPL": decimal.NewFromInt(140),
		},
		BuyInputs: map[string]int64{"MSFT": 3},
	}
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Orders, 1)
	assert.True(t, got.Cash.Valid)
	assert.True(t, got.Cash.Decimal.Equal(decimal.NewFromInt(99699)))
	assert.True(t, got.StopLoss["AAPL"].Equal(decimal.NewFromInt(140)))
	assert.Equal(t, int64(3), got.BuyInputs["MSFT"])

	// Save overwrites.
	require.NoError(t, s.Save(ctx, domain.State{}))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Orders)
	assert.False(t, got.Cash.Valid)
}

func TestOrderJournal(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	base := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	for i, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, s.Append(ctx, domain.Order{
			ID: id, Symbol: "TSLA", Quantity: int64(i + 1), Action: domain.ActionBuy,
			Price: decimal.RequireFromString("250.25"), ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Append(ctx, domain.Order{ID: "o1", Symbol: "TSLA", Quantity: 99, Action: domain.ActionSell, ExecutedAt: base}))

	orders, err := s.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o3", orders[0].ID)
	assert.Equal(t, "o2", orders[1].ID)
	assert.True(t, orders[0].Price.Equal(decimal.RequireFromString("250.25")))
	assert.Equal(t, domain.OrderSourceUser, orders[0].Source)

	since := base.Add(30 * time.Second)
	orders, err = s.List(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	orders, err = s.List(ctx, domain.ListOpts{Offset: 2, Limit: 10})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(1), orders[0].Quantity)
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	audit := openTemp(t).Audit()

	require.NoError(t, audit.Log(ctx, "stoploss_set", map[string]any{"symbol": "AAPL"}))
	require.NoError(t, audit.Log(ctx, "session_reset", map[string]any{"orders": 2}))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	events := []string{entries[0].Event, entries[1].Event}
	assert.ElementsMatch(t, []string{"stoploss_set", "session_reset"}, events)
}
