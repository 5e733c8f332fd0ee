package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StateKey is the fixed identifier of the persisted session record.
const StateKey = "stock-market-storage"

// State is the full persisted state tree of a trading session.
// Cash is nullable so that records written without it can be rebuilt from
// the order history on restore.
type State struct {
	Quotes     []Quote                    `json:"stocks"`
	Orders     []Order                    `json:"orders"`
	Cash       decimal.NullDecimal        `json:"cash"`
	RealizedPL map[string]decimal.Decimal `json:"profitLoss"`
	BuyInputs  map[string]int64           `json:"buyQuantities"`
	SellInputs map[string]int64           `json:"sellQuantities"`
	StopLoss   map[string]decimal.Decimal `json:"stopLossPrices"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
}

// Portfolio is a derived read-only view of a session.
type Portfolio struct {
	Cash       decimal.Decimal            `json:"cash"`
	Holdings   map[string]int64           `json:"holdings"`
	RealizedPL map[string]decimal.Decimal `json:"profitLoss"`
	StopLoss   map[string]decimal.Decimal `json:"stopLossPrices"`
	BuyInputs  map[string]int64           `json:"buyQuantities"`
	SellInputs map[string]int64           `json:"sellQuantities"`
	Quotes     []Quote                    `json:"stocks"`
	Value      decimal.Decimal            `json:"portfolioValue"`
	OrderCount int                        `json:"orderCount"`
}
