package notify

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// FormatMoney renders amount in the given ISO currency, e.g. "$1,500.00".
// An empty currency formats as USD.
func FormatMoney(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = money.USD
	}
	cur := money.New(0, currency).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// Messages builds user-facing notifications in one currency.
type Messages struct {
	Currency string
}

// OrderFilled acknowledges an executed order.
func (m Messages) OrderFilled(o domain.Order) domain.Notification {
	verb := "bought"
	if o.Action == domain.ActionSell {
		verb = "sold"
	}
	title := "Order filled"
	event := domain.EventOrderSuccess
	if o.Source == domain.OrderSourceStopLoss {
		verb = "stop-loss " + verb
		title = "Stop-loss triggered"
		event = domain.EventStopLoss
	}
	return domain.Notification{
		Kind:  domain.NotificationSuccess,
		Event: event,
		Title: title,
		Message: fmt.Sprintf("%s %d %s at %s (%s)",
			verb, o.Quantity, o.Symbol,
			FormatMoney(o.Price, m.Currency), FormatMoney(o.Value(), m.Currency)),
		Symbol: o.Symbol,
	}
}

// InsufficientFunds reports a rejected buy.
func (m Messages) InsufficientFunds(symbol string, quantity int64, cost, cash decimal.Decimal) domain.Notification {
	return domain.Notification{
		Kind:  domain.NotificationError,
		Event: domain.EventOrderError,
		Title: "Order rejected",
		Message: fmt.Sprintf("insufficient cash to buy %d %s (%s needed, %s available)",
			quantity, symbol, FormatMoney(cost, m.Currency), FormatMoney(cash, m.Currency)),
		Symbol: symbol,
	}
}

// InsufficientHoldings reports a rejected sell.
func (m Messages) InsufficientHoldings(symbol string) domain.Notification {
	return domain.Notification{
		Kind:    domain.NotificationError,
		Event:   domain.EventOrderError,
		Title:   "Order rejected",
		Message: fmt.Sprintf("you do not have enough %s shares to sell", symbol),
		Symbol:  symbol,
	}
}

// Rejected reports any other order failure.
func (m Messages) Rejected(symbol string, err error) domain.Notification {
	return domain.Notification{
		Kind:    domain.NotificationError,
		Event:   domain.EventOrderError,
		Title:   "Order rejected",
		Message: err.Error(),
		Symbol:  symbol,
	}
}

// Reset acknowledges a session reset.
func (m Messages) Reset(cash decimal.Decimal) domain.Notification {
	return domain.Notification{
		Kind:    domain.NotificationSuccess,
		Event:   domain.EventReset,
		Title:   "Session reset",
		Message: fmt.Sprintf("portfolio cleared, cash restored to %s", FormatMoney(cash, m.Currency)),
	}
}
