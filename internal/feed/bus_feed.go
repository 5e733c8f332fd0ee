package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// SnapshotHandler receives the full quotes of a snapshot event.
type SnapshotHandler func(ctx context.Context, quotes []domain.Quote)

// BusFeed subscribes to the "prices" channel of the signal bus and hands each
// published batch to a TickHandler. It lets a session process consume ticks
// produced by a separate feed process. Snapshot events never reach the
// TickHandler; they go to the SnapshotHandler when one is set.
type BusFeed struct {
	bus      domain.SignalBus
	handler  TickHandler
	snapshot SnapshotHandler
	logger   *slog.Logger
}

// NewBusFeed creates a BusFeed.
func NewBusFeed(bus domain.SignalBus, handler TickHandler, logger *slog.Logger) *BusFeed {
	return &BusFeed{
		bus:     bus,
		handler: handler,
		logger:  logger.With(slog.String("component", "bus_feed")),
	}
}

// WithSnapshotHandler routes snapshot events to h.
func (f *BusFeed) WithSnapshotHandler(h SnapshotHandler) *BusFeed {
	f.snapshot = h
	return f
}

// Run consumes batches until ctx is cancelled or the subscription closes.
func (f *BusFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, domain.ChannelPrices)
	if err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "bus_feed: started")
	defer f.logger.Info("bus_feed: stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			ev, err := decodeEvent(data)
			if err != nil {
				f.logger.Debug("bus_feed: handle message failed",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			if ev.Event == domain.PriceEventSnapshot {
				if f.snapshot != nil && len(ev.Quotes) > 0 {
					f.snapshot(ctx, ev.Quotes)
				}
				continue
			}
			if len(ev.Ticks) > 0 {
				f.handler(ctx, ev.Ticks)
			}
		}
	}
}

// decodeEvent parses a price event and drops ticks and quotes without a
// symbol or a positive price.
func decodeEvent(data []byte) (domain.PriceEvent, error) {
	var ev domain.PriceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	ticks := ev.Ticks[:0]
	for _, t := range ev.Ticks {
		t.Symbol = strings.TrimSpace(t.Symbol)
		if t.Symbol == "" || !t.Price.IsPositive() {
			continue
		}
		ticks = append(ticks, t)
	}
	ev.Ticks = ticks
	quotes := ev.Quotes[:0]
	for _, q := range ev.Quotes {
		q.Symbol = strings.TrimSpace(q.Symbol)
		if q.Symbol == "" || !q.Price.IsPositive() {
			continue
		}
		quotes = append(quotes, q)
	}
	ev.Quotes = quotes
	return ev, nil
}
