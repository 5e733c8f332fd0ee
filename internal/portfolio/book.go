// Package portfolio holds the accounting core of a paper-trading session:
// the state book, the order engine, the stop-loss monitor and the valuator.
//
// A Book is not safe for concurrent use. Callers serialize access, typically
// behind the session service mutex.
package portfolio

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/ledger"
)

// ChangeBaseline selects what a tick's changePercent is measured against.
type ChangeBaseline string

const (
	// BaselinePrevious measures against the previously stored price.
	BaselinePrevious ChangeBaseline = "previous"
	// BaselineClose measures against the snapshot previous close.
	BaselineClose ChangeBaseline = "close"
)

// StopLossMode selects how many shares a triggered stop-loss sells.
type StopLossMode string

const (
	// StopLossPosition sells the full position.
	StopLossPosition StopLossMode = "position"
	// StopLossInput sells the pending sell input, or the default quantity.
	StopLossInput StopLossMode = "input"
)

// DefaultInitialCash is the starting balance of a fresh session.
var DefaultInitialCash = decimal.NewFromInt(100000)

// Options configures a Book.
type Options struct {
	Symbols         []string
	InitialCash     decimal.Decimal
	Baseline        ChangeBaseline
	StopLossMode    StopLossMode
	DefaultQuantity int64
}

func (o Options) withDefaults() Options {
	if len(o.Symbols) == 0 {
		o.Symbols = domain.DefaultSymbols
	}
	if o.InitialCash.IsZero() {
		o.InitialCash = DefaultInitialCash
	}
	if o.Baseline == "" {
		o.Baseline = BaselinePrevious
	}
	if o.StopLossMode == "" {
		o.StopLossMode = StopLossPosition
	}
	if o.DefaultQuantity <= 0 {
		o.DefaultQuantity = 1
	}
	return o
}

// Book is the mutable state tree of one session.
type Book struct {
	opts    Options
	tracked map[string]bool

	ledger     *ledger.Ledger
	quotes     map[string]domain.Quote
	cash       decimal.Decimal
	realized   map[string]decimal.Decimal
	buyInputs  map[string]int64
	sellInputs map[string]int64
	stopLoss   map[string]decimal.Decimal

	now   func() time.Time
	newID func() string
}

// NewBook creates an empty book with the initial cash balance.
func NewBook(opts Options) *Book {
	opts = opts.withDefaults()
	tracked := make(map[string]bool, len(opts.Symbols))
	for _, s := range opts.Symbols {
		tracked[s] = true
	}
	b := &Book{
		opts:    opts,
		tracked: tracked,
		ledger:  ledger.New(nil),
		quotes:  make(map[string]domain.Quote),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	b.clearAccounts()
	return b
}

func (b *Book) clearAccounts() {
	b.cash = b.opts.InitialCash
	b.realized = make(map[string]decimal.Decimal)
	b.buyInputs = make(map[string]int64)
	b.sellInputs = make(map[string]int64)
	b.stopLoss = make(map[string]decimal.Decimal)
}

// Options returns the effective options.
func (b *Book) Options() Options {
	return b.opts
}

// Tracks reports whether symbol belongs to the tracked set.
func (b *Book) Tracks(symbol string) bool {
	return b.tracked[symbol]
}

// Cash returns the current cash balance.
func (b *Book) Cash() decimal.Decimal {
	return b.cash
}

// RealizedPL returns the running net cash flow for symbol.
func (b *Book) RealizedPL(symbol string) decimal.Decimal {
	return b.realized[symbol]
}

// Holdings returns net holdings per symbol, derived from the ledger.
func (b *Book) Holdings() map[string]int64 {
	return b.ledger.Holdings()
}

// Orders returns the executed orders in execution order.
func (b *Book) Orders() []domain.Order {
	return b.ledger.Orders()
}

// StopLoss returns the threshold for symbol, if one is set.
func (b *Book) StopLoss(symbol string) (decimal.Decimal, bool) {
	p, ok := b.stopLoss[symbol]
	return p, ok
}

// Quote returns the live quote for symbol.
func (b *Book) Quote(symbol string) (domain.Quote, bool) {
	q, ok := b.quotes[symbol]
	return q, ok
}

// Quotes returns the live quotes in tracked-symbol order.
func (b *Book) Quotes() []domain.Quote {
	out := make([]domain.Quote, 0, len(b.quotes))
	for _, s := range b.opts.Symbols {
		if q, ok := b.quotes[s]; ok {
			out = append(out, q)
		}
	}
	return out
}

// SetQuotes installs snapshot quotes. Quotes for untracked symbols are
// dropped; existing quotes for other symbols are kept.
func (b *Book) SetQuotes(quotes []domain.Quote) {
	for _, q := range quotes {
		if !b.tracked[q.Symbol] {
			continue
		}
		if q.UpdatedAt.IsZero() {
			q.UpdatedAt = b.now()
		}
		b.quotes[q.Symbol] = q
	}
}

// ApplyTicks overwrites quote prices with the given ticks and recomputes
// changePercent against the configured baseline. It returns the quotes that
// changed. Ticks for untracked symbols are ignored.
func (b *Book) ApplyTicks(ticks []domain.Tick) []domain.Quote {
	var changed []domain.Quote
	for _, t := range ticks {
		if !b.tracked[t.Symbol] || !t.Price.IsPositive() {
			continue
		}
		ts := t.Time
		if ts.IsZero() {
			ts = b.now()
		}
		prev, ok := b.quotes[t.Symbol]
		q := domain.Quote{
			Symbol:        t.Symbol,
			Price:         t.Price,
			PreviousClose: prev.PreviousClose,
			UpdatedAt:     ts,
		}
		if ok {
			switch b.opts.Baseline {
			case BaselineClose:
				q.ChangePercent = domain.ChangePercent(t.Price, prev.PreviousClose)
			default:
				q.ChangePercent = domain.ChangePercent(t.Price, prev.Price)
			}
		}
		b.quotes[t.Symbol] = q
		changed = append(changed, q)
	}
	return changed
}

// PendingQuantity returns the pending input for symbol and action, or 1 when
// no input is set.
func (b *Book) PendingQuantity(symbol string, action domain.Action) int64 {
	inputs := b.buyInputs
	if action == domain.ActionSell {
		inputs = b.sellInputs
	}
	if n := inputs[symbol]; n > 0 {
		return n
	}
	return 1
}

// SetInput records a pending quantity for symbol and action. Zero clears it.
func (b *Book) SetInput(symbol string, action domain.Action, quantity int64) error {
	if !b.tracked[symbol] {
		return domain.ErrUnknownSymbol
	}
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	inputs := b.buyInputs
	if action == domain.ActionSell {
		inputs = b.sellInputs
	}
	if quantity == 0 {
		delete(inputs, symbol)
		return nil
	}
	inputs[symbol] = quantity
	return nil
}

// SetStopLoss sets the stop-loss threshold for symbol.
func (b *Book) SetStopLoss(symbol string, price decimal.Decimal) error {
	if !b.tracked[symbol] {
		return domain.ErrUnknownSymbol
	}
	if !price.IsPositive() {
		return domain.ErrInvalidPrice
	}
	b.stopLoss[symbol] = price
	return nil
}

// ClearStopLoss removes the threshold for symbol and reports whether one was
// set.
func (b *Book) ClearStopLoss(symbol string) bool {
	_, ok := b.stopLoss[symbol]
	delete(b.stopLoss, symbol)
	return ok
}

// Reset clears orders, realized P&L, pending inputs and stop-loss thresholds
// and restores the initial cash balance. Quotes are kept.
func (b *Book) Reset() {
	b.ledger.Clear()
	b.clearAccounts()
}

// State returns a deep copy of the state tree for persistence.
func (b *Book) State() domain.State {
	return domain.State{
		Quotes:     b.Quotes(),
		Orders:     b.ledger.Orders(),
		Cash:       decimal.NewNullDecimal(b.cash),
		RealizedPL: copyMap(b.realized),
		BuyInputs:  copyMap(b.buyInputs),
		SellInputs: copyMap(b.sellInputs),
		StopLoss:   copyMap(b.stopLoss),
		UpdatedAt:  b.now(),
	}
}

// Restore replaces the book contents with a persisted state. When the record
// carries no cash balance it is rebuilt from the order history.
func (b *Book) Restore(st domain.State) {
	b.ledger = ledger.New(st.Orders)
	b.quotes = make(map[string]domain.Quote, len(st.Quotes))
	b.SetQuotes(st.Quotes)

	if st.Cash.Valid {
		b.cash = st.Cash.Decimal
	} else {
		b.cash = CashFromOrders(b.opts.InitialCash, st.Orders)
	}
	b.realized = copyMap(st.RealizedPL)
	b.buyInputs = copyMap(st.BuyInputs)
	b.sellInputs = copyMap(st.SellInputs)
	b.stopLoss = copyMap(st.StopLoss)
}

// Portfolio returns the derived read-only view of the book.
func (b *Book) Portfolio() domain.Portfolio {
	holdings := b.ledger.Holdings()
	return domain.Portfolio{
		Cash:       b.cash,
		Holdings:   holdings,
		RealizedPL: copyMap(b.realized),
		StopLoss:   copyMap(b.stopLoss),
		BuyInputs:  copyMap(b.buyInputs),
		SellInputs: copyMap(b.sellInputs),
		Quotes:     b.Quotes(),
		Value:      Value(b.cash, holdings, b.quotes),
		OrderCount: b.ledger.Len(),
	}
}

// CashFromOrders returns initial minus every buy plus every sell.
func CashFromOrders(initial decimal.Decimal, orders []domain.Order) decimal.Decimal {
	cash := initial
	for _, o := range orders {
		switch o.Action {
		case domain.ActionBuy:
			cash = cash.Sub(o.Value())
		case domain.ActionSell:
			cash = cash.Add(o.Value())
		}
	}
	return cash
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
