package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func newTSLABook(t *testing.T, opts Options, held int64) *Book {
	t.Helper()
	b := NewBook(opts)
	b.SetQuotes([]domain.Quote{{Symbol: "TSLA", Price: d("250")}})
	_, err := b.Buy("TSLA", held, domain.OrderSourceUser)
	require.NoError(t, err)
	require.NoError(t, b.SetStopLoss("TSLA", d("200")))
	return b
}

func TestStopLossSellsFullPosition(t *testing.T) {
	b := newTSLABook(t, Options{}, 5)

	assert.Empty(t, b.CheckStopLoss())

	b.ApplyTicks([]domain.Tick{{Symbol: "TSLA", Price: d("199")}})
	results := b.CheckStopLoss()

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(5), results[0].Quantity)
	assert.Equal(t, domain.OrderSourceStopLoss, results[0].Order.Source)
	assert.Equal(t, int64(0), b.Holdings()["TSLA"])
	_, ok := b.StopLoss("TSLA")
	assert.False(t, ok)

	assert.Empty(t, b.CheckStopLoss())
}

func TestStopLossTriggersAtThreshold(t *testing.T) {
	b := newTSLABook(t, Options{}, 2)
	b.ApplyTicks([]domain.Tick{{Symbol: "TSLA", Price: d("200")}})

	results := b.CheckStopLoss()
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestStopLossInputModeIsLevelTriggered(t *testing.T) {
	b := newTSLABook(t, Options{StopLossMode: StopLossInput}, 3)
	b.ApplyTicks([]domain.Tick{{Symbol: "TSLA", Price: d("190")}})

	for want := int64(2); want >= 0; want-- {
		results := b.CheckStopLoss()
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		assert.Equal(t, int64(1), results[0].Quantity)
		assert.Equal(t, want, b.Holdings()["TSLA"])
	}

	_, ok := b.StopLoss("TSLA")
	assert.False(t, ok)
	assert.Empty(t, b.CheckStopLoss())
}

func TestStopLossInputModeCapsSellInputAtHolding(t *testing.T) {
	b := newTSLABook(t, Options{StopLossMode: StopLossInput}, 3)
	require.NoError(t, b.SetInput("TSLA", domain.ActionSell, 5))
	b.ApplyTicks([]domain.Tick{{Symbol: "TSLA", Price: d("190")}})

	results := b.CheckStopLoss()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(3), results[0].Quantity)
	assert.Equal(t, int64(0), b.Holdings()["TSLA"])

	_, ok := b.StopLoss("TSLA")
	assert.False(t, ok)
	assert.Empty(t, b.CheckStopLoss())
}

func TestStopLossInputModeSellsSmallerInput(t *testing.T) {
	b := newTSLABook(t, Options{StopLossMode: StopLossInput}, 5)
	require.NoError(t, b.SetInput("TSLA", domain.ActionSell, 2))
	b.ApplyTicks([]domain.Tick{{Symbol: "TSLA", Price: d("190")}})

	results := b.CheckStopLoss()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(2), results[0].Quantity)
	assert.Equal(t, int64(3), b.Holdings()["TSLA"])
}

func TestStopLossSkipsFlatPositions(t *testing.T) {
	b := NewBook(Options{})
	b.SetQuotes([]domain.Quote{{Symbol: "MSFT", Price: d("100")}})
	require.NoError(t, b.SetStopLoss("MSFT", d("150")))

	assert.Empty(t, b.CheckStopLoss())
	assert.Empty(t, b.Orders())
}
