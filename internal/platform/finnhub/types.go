// Package finnhub implements clients for the Finnhub stock quote REST API and
// the Finnhub real-time trade WebSocket.
package finnhub

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// QuoteResponse is the body of GET /quote.
type QuoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// ToDomainQuote converts the response to a quote whose changePercent is
// measured against the previous close.
func (r QuoteResponse) ToDomainQuote(symbol string) domain.Quote {
	price := decimal.NewFromFloat(r.Current)
	prevClose := decimal.NewFromFloat(r.PreviousClose)
	ts := time.Now().UTC()
	if r.Timestamp > 0 {
		ts = time.Unix(r.Timestamp, 0).UTC()
	}
	return domain.Quote{
		Symbol:        symbol,
		Price:         price,
		ChangePercent: domain.ChangePercent(price, prevClose),
		PreviousClose: prevClose,
		UpdatedAt:     ts,
	}
}

// Command is an outbound WebSocket control message.
type Command struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Trade is one element of a "trade" message.
type Trade struct {
	Symbol    string
	Price     float64
	Timestamp int64 // unix millis
	Volume    float64
}

// ToDomainTick converts a trade to a tick.
func (t Trade) ToDomainTick() domain.Tick {
	ts := time.Now().UTC()
	if t.Timestamp > 0 {
		ts = time.UnixMilli(t.Timestamp).UTC()
	}
	return domain.Tick{
		Symbol: t.Symbol,
		Price:  decimal.NewFromFloat(t.Price),
		Time:   ts,
	}
}
