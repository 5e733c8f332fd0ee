package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// Snapshotter fetches a one-shot quote snapshot for a symbol set.
type Snapshotter interface {
	Snapshot(ctx context.Context, symbols []string) ([]domain.Quote, error)
}

// QuoteSink receives snapshot quotes and coalesced tick batches.
type QuoteSink interface {
	SetQuotes(ctx context.Context, quotes []domain.Quote)
	ApplyTicks(ctx context.Context, ticks []domain.Tick)
}

// PriceService fans price data out from the feeds to the price cache, the
// signal bus and the trading session. Every downstream is optional.
type PriceService struct {
	symbols    []string
	snapshot   Snapshotter
	priceCache domain.PriceCache
	bus        domain.SignalBus
	sink       QuoteSink
	source     string
	logger     *slog.Logger
}

// NewPriceService creates a PriceService for symbols.
func NewPriceService(symbols []string, snapshot Snapshotter, logger *slog.Logger) *PriceService {
	return &PriceService{
		symbols:  symbols,
		snapshot: snapshot,
		logger:   logger,
	}
}

// WithCache mirrors every price into cache.
func (s *PriceService) WithCache(cache domain.PriceCache) *PriceService {
	s.priceCache = cache
	return s
}

// WithPublisher publishes price events on the bus tagged with source.
func (s *PriceService) WithPublisher(bus domain.SignalBus, source string) *PriceService {
	s.bus = bus
	s.source = source
	return s
}

// WithSink forwards quotes and ticks to sink.
func (s *PriceService) WithSink(sink QuoteSink) *PriceService {
	s.sink = sink
	return s
}

// LoadSnapshot fetches the initial quotes. When the feed is unavailable the
// error is logged and the previously restored quotes stay in effect; other
// errors are returned.
func (s *PriceService) LoadSnapshot(ctx context.Context) error {
	if s.snapshot == nil {
		return nil
	}

	quotes, err := s.snapshot.Snapshot(ctx, s.symbols)
	if errors.Is(err, domain.ErrFeedUnavailable) {
		s.logger.WarnContext(ctx, "price_service: snapshot unavailable, keeping restored quotes",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("price_service: snapshot: %w", err)
	}

	ticks := make([]domain.Tick, 0, len(quotes))
	for _, q := range quotes {
		ticks = append(ticks, domain.Tick{Symbol: q.Symbol, Price: q.Price, Time: q.UpdatedAt})
	}
	s.mirror(ctx, domain.PriceEvent{Event: domain.PriceEventSnapshot, Ticks: ticks, Quotes: quotes})

	if s.sink != nil {
		s.sink.SetQuotes(ctx, quotes)
	}
	s.logger.InfoContext(ctx, "price_service: snapshot loaded", slog.Int("quotes", len(quotes)))
	return nil
}

// HandleTicks processes one coalesced batch of ticks.
func (s *PriceService) HandleTicks(ctx context.Context, ticks []domain.Tick) {
	if len(ticks) == 0 {
		return
	}
	s.mirror(ctx, domain.PriceEvent{Event: domain.PriceEventTicks, Ticks: ticks})
	if s.sink != nil {
		s.sink.ApplyTicks(ctx, ticks)
	}
}

func (s *PriceService) mirror(ctx context.Context, ev domain.PriceEvent) {
	if s.priceCache != nil {
		for _, t := range ev.Ticks {
			ts := t.Time
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			if err := s.priceCache.SetPrice(ctx, t.Symbol, t.Price, ts); err != nil {
				s.logger.WarnContext(ctx, "price_service: cache price failed",
					slog.String("symbol", t.Symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if s.bus == nil {
		return
	}
	ev.Source = s.source
	ev.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "price_service: marshal price event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
		s.logger.WarnContext(ctx, "price_service: publish price event failed",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()),
		)
	}
}
