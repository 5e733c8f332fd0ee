package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func order(symbol string, action domain.Action, qty int64) domain.Order {
	return domain.Order{Symbol: symbol, Action: action, Quantity: qty, Price: decimal.NewFromInt(100)}
}

func TestHoldingsFoldsHistory(t *testing.T) {
	l := New(nil)
	l.Record(order("AAPL", domain.ActionBuy, 10))
	l.Record(order("TSLA", domain.ActionBuy, 5))
	l.Record(order("AAPL", domain.ActionSell, 4))
	l.Record(order("TSLA", domain.ActionSell, 5))

	h := l.Holdings()
	assert.Equal(t, int64(6), h["AAPL"])
	assert.Equal(t, int64(0), h["TSLA"])
	assert.Equal(t, int64(6), l.HoldingOf("AAPL"))
	assert.Equal(t, int64(0), l.HoldingOf("MSFT"))
}

func TestHoldingsIsDeterministic(t *testing.T) {
	l := New([]domain.Order{order("MSFT", domain.ActionBuy, 3)})
	assert.Equal(t, l.Holdings(), l.Holdings())
}

func TestNewCopiesHistory(t *testing.T) {
	history := []domain.Order{order("AAPL", domain.ActionBuy, 1)}
	l := New(history)
	history[0].Quantity = 99

	require.Equal(t, 1, l.Len())
	assert.Equal(t, int64(1), l.Orders()[0].Quantity)
}

func TestOrdersReturnsCopy(t *testing.T) {
	l := New(nil)
	l.Record(order("AAPL", domain.ActionBuy, 2))

	got := l.Orders()
	got[0].Quantity = 50

	assert.Equal(t, int64(2), l.HoldingOf("AAPL"))
}

func TestClear(t *testing.T) {
	l := New(nil)
	l.Record(order("AAPL", domain.ActionBuy, 2))
	l.Clear()

	assert.Zero(t, l.Len())
	assert.Empty(t, l.Holdings())
}
