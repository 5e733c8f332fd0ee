package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// Buy executes a buy of quantity shares of symbol at its live quote.
func (b *Book) Buy(symbol string, quantity int64, source domain.OrderSource) (domain.Order, error) {
	q, err := b.resolve(symbol, quantity)
	if err != nil {
		return domain.Order{}, err
	}
	return b.ExecuteBuy(symbol, quantity, q, source)
}

// Sell executes a sell of quantity shares of symbol at its live quote.
func (b *Book) Sell(symbol string, quantity int64, source domain.OrderSource) (domain.Order, error) {
	q, err := b.resolve(symbol, quantity)
	if err != nil {
		return domain.Order{}, err
	}
	return b.ExecuteSell(symbol, quantity, q, source)
}

func (b *Book) resolve(symbol string, quantity int64) (domain.Quote, error) {
	if quantity <= 0 {
		return domain.Quote{}, domain.ErrInvalidQuantity
	}
	q, ok := b.quotes[symbol]
	if !ok || !b.tracked[symbol] {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return q, nil
}

// ExecuteBuy debits cash, records a buy order and lowers realized P&L by the
// transaction value. It fails with ErrInsufficientFunds, leaving the book
// untouched, when the cost exceeds the cash balance. Quantity and quote are
// assumed valid.
func (b *Book) ExecuteBuy(symbol string, quantity int64, quote domain.Quote, source domain.OrderSource) (domain.Order, error) {
	cost := quote.Price.Mul(decimal.NewFromInt(quantity))
	if cost.GreaterThan(b.cash) {
		return domain.Order{}, domain.ErrInsufficientFunds
	}

	order := b.newOrder(symbol, quantity, domain.ActionBuy, quote.Price, source)
	b.ledger.Record(order)
	b.cash = b.cash.Sub(cost)
	b.realized[symbol] = b.realized[symbol].Sub(cost)
	delete(b.buyInputs, symbol)
	return order, nil
}

// ExecuteSell credits cash, records a sell order and raises realized P&L by
// the transaction value. It fails with ErrInsufficientHoldings, leaving the
// book untouched, when quantity exceeds the current holding. A sell that
// liquidates the position clears the stop-loss and pending inputs.
func (b *Book) ExecuteSell(symbol string, quantity int64, quote domain.Quote, source domain.OrderSource) (domain.Order, error) {
	held := b.ledger.HoldingOf(symbol)
	if quantity > held {
		return domain.Order{}, domain.ErrInsufficientHoldings
	}

	proceeds := quote.Price.Mul(decimal.NewFromInt(quantity))
	order := b.newOrder(symbol, quantity, domain.ActionSell, quote.Price, source)
	b.ledger.Record(order)
	b.cash = b.cash.Add(proceeds)
	b.realized[symbol] = b.realized[symbol].Add(proceeds)
	delete(b.sellInputs, symbol)

	if held == quantity {
		delete(b.stopLoss, symbol)
		delete(b.buyInputs, symbol)
	}
	return order, nil
}

func (b *Book) newOrder(symbol string, quantity int64, action domain.Action, price decimal.Decimal, source domain.OrderSource) domain.Order {
	if source == "" {
		source = domain.OrderSourceUser
	}
	return domain.Order{
		ID:         b.newID(),
		Symbol:     symbol,
		Quantity:   quantity,
		Action:     action,
		Price:      price,
		Source:     source,
		ExecutedAt: b.now(),
	}
}
