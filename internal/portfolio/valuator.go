package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// Value returns cash plus the mark-to-market value of holdings. A held
// symbol without a quote contributes zero.
func Value(cash decimal.Decimal, holdings map[string]int64, quotes map[string]domain.Quote) decimal.Decimal {
	total := cash
	for symbol, qty := range holdings {
		q, ok := quotes[symbol]
		if !ok || qty == 0 {
			continue
		}
		total = total.Add(q.Price.Mul(decimal.NewFromInt(qty)))
	}
	return total
}

// Value returns the current portfolio value of the book.
func (b *Book) Value() decimal.Decimal {
	return Value(b.cash, b.ledger.Holdings(), b.quotes)
}
