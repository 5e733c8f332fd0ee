package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action indicates whether an order bought or sold.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// OrderSource records what initiated an order.
type OrderSource string

const (
	OrderSourceUser     OrderSource = "user"
	OrderSourceStopLoss OrderSource = "stoploss"
)

// Order is an executed buy or sell. Orders are immutable once recorded.
type Order struct {
	ID         string          `json:"id,omitempty"`
	Symbol     string          `json:"symbol"`
	Quantity   int64           `json:"quantity"`
	Action     Action          `json:"action"`
	Price      decimal.Decimal `json:"price"`
	Source     OrderSource     `json:"source,omitempty"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// Value returns price * quantity.
func (o Order) Value() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// OrderResult is returned to callers after an order attempt.
type OrderResult struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order,omitempty"`
	Message string `json:"message"`
}
