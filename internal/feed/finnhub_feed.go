package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/platform/finnhub"
)

// FinnhubFeed streams Finnhub trades for a fixed symbol set and passes them,
// uncoalesced, to onTicks. It reconnects with exponential backoff until ctx
// is cancelled or Close is called.
type FinnhubFeed struct {
	wsURL        string
	token        string
	symbols      []string
	onTicks      func(ticks ...domain.Tick)
	reconnectMin time.Duration
	reconnectMax time.Duration
	logger       *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewFinnhubFeed creates a feed. reconnectMin and reconnectMax bound the
// reconnect backoff.
func NewFinnhubFeed(wsURL, token string, symbols []string, reconnectMin, reconnectMax time.Duration, onTicks func(ticks ...domain.Tick), logger *slog.Logger) *FinnhubFeed {
	if reconnectMin <= 0 {
		reconnectMin = 2 * time.Second
	}
	if reconnectMax < reconnectMin {
		reconnectMax = reconnectMin
	}
	return &FinnhubFeed{
		wsURL:        wsURL,
		token:        token,
		symbols:      symbols,
		onTicks:      onTicks,
		reconnectMin: reconnectMin,
		reconnectMax: reconnectMax,
		logger:       logger.With(slog.String("component", "finnhub_feed")),
		done:         make(chan struct{}),
	}
}

// Run connects, subscribes and dispatches ticks until ctx is cancelled.
func (f *FinnhubFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("finnhub_feed: no symbols to subscribe, exiting")
		return nil
	}

	delay := f.reconnectMin
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		connected, err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}
		if connected {
			delay = f.reconnectMin
		}
		f.logger.WarnContext(ctx, "finnhub_feed: disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, f.reconnectMax)
	}
}

func (f *FinnhubFeed) runConnection(ctx context.Context) (bool, error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-connCtx.Done():
		}
	}()

	client := finnhub.NewWSClient(f.wsURL, f.token)
	defer client.Close()

	client.OnTrade(func(trades []finnhub.Trade) {
		ticks := make([]domain.Tick, 0, len(trades))
		for _, t := range trades {
			ticks = append(ticks, t.ToDomainTick())
		}
		f.onTicks(ticks...)
	})

	dialCtx, dialCancel := context.WithTimeout(connCtx, 15*time.Second)
	err := client.Connect(dialCtx, f.symbols)
	dialCancel()
	if err != nil {
		return false, errors.Join(domain.ErrFeedUnavailable, err)
	}
	f.logger.InfoContext(ctx, "finnhub_feed: subscribed", slog.Int("symbols", len(f.symbols)))

	return true, client.Listen(connCtx)
}

// Close stops the feed.
func (f *FinnhubFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
