package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// StopLossResult is the outcome of one triggered stop-loss.
type StopLossResult struct {
	Symbol    string
	Threshold decimal.Decimal
	Quote     domain.Quote
	Quantity  int64
	Order     domain.Order
	Err       error
}

// CheckStopLoss evaluates every threshold against the live quotes and sells
// through the order engine where price <= threshold. The rule is level
// triggered: a threshold left in place after a partial sell fires again on
// the next evaluation. Symbols with no holdings are skipped. In input mode the
// quantity is capped at the holding.
func (b *Book) CheckStopLoss() []StopLossResult {
	var results []StopLossResult
	for _, symbol := range sortedKeys(b.stopLoss) {
		threshold := b.stopLoss[symbol]
		q, ok := b.quotes[symbol]
		if !ok || q.Price.GreaterThan(threshold) {
			continue
		}
		held := b.ledger.HoldingOf(symbol)
		if held <= 0 {
			continue
		}

		qty := held
		if b.opts.StopLossMode == StopLossInput {
			qty = b.opts.DefaultQuantity
			if n := b.sellInputs[symbol]; n > 0 {
				qty = n
			}
			qty = min(qty, held)
		}

		res := StopLossResult{Symbol: symbol, Threshold: threshold, Quote: q, Quantity: qty}
		res.Order, res.Err = b.ExecuteSell(symbol, qty, q, domain.OrderSourceStopLoss)
		results = append(results, res)
	}
	return results
}
