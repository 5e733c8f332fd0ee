// Package ledger keeps the append-only history of executed orders.
package ledger

import (
	"github.com/alanyoungcy/papertrade/internal/domain"
)

// Ledger is an append-only sequence of executed orders. It performs no
// validation; holdings are always derived by folding the full history.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	orders []domain.Order
}

// New creates a Ledger seeded with a copy of history.
func New(history []domain.Order) *Ledger {
	orders := make([]domain.Order, len(history))
	copy(orders, history)
	return &Ledger{orders: orders}
}

// Record appends an order.
func (l *Ledger) Record(order domain.Order) {
	l.orders = append(l.orders, order)
}

// Holdings returns the net quantity held per symbol. Symbols whose net
// position is zero are included when they have any history.
func (l *Ledger) Holdings() map[string]int64 {
	holdings := make(map[string]int64)
	for _, o := range l.orders {
		switch o.Action {
		case domain.ActionBuy:
			holdings[o.Symbol] += o.Quantity
		case domain.ActionSell:
			holdings[o.Symbol] -= o.Quantity
		}
	}
	return holdings
}

// HoldingOf returns the net quantity held for one symbol.
func (l *Ledger) HoldingOf(symbol string) int64 {
	var n int64
	for _, o := range l.orders {
		if o.Symbol != symbol {
			continue
		}
		switch o.Action {
		case domain.ActionBuy:
			n += o.Quantity
		case domain.ActionSell:
			n -= o.Quantity
		}
	}
	return n
}

// Orders returns a copy of the history in execution order.
func (l *Ledger) Orders() []domain.Order {
	out := make([]domain.Order, len(l.orders))
	copy(out, l.orders)
	return out
}

// Len returns the number of recorded orders.
func (l *Ledger) Len() int {
	return len(l.orders)
}

// Clear removes all history.
func (l *Ledger) Clear() {
	l.orders = nil
}
