package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSymbols is the fixed symbol set tracked when none is configured.
var DefaultSymbols = []string{"AAPL", "GOOGL", "AMZN", "MSFT", "TSLA"}

// Quote is the latest known price for a symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Tick is a single trade price delivered by a streaming feed.
type Tick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   time.Time       `json:"time"`
}

// ChangePercent returns (price - base) / base * 100, or zero when base is zero.
func ChangePercent(price, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return price.Sub(base).Div(base).Mul(decimal.NewFromInt(100))
}

// Price event kinds.
const (
	PriceEventSnapshot = "snapshot"
	PriceEventTicks    = "ticks"
)

// PriceEvent is the payload published on ChannelPrices. Snapshot events also
// carry the full quotes so consumers keep the previous close.
type PriceEvent struct {
	Event     string    `json:"event"`
	Ticks     []Tick    `json:"ticks"`
	Quotes    []Quote   `json:"quotes,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
