package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/feed"
	"github.com/alanyoungcy/papertrade/internal/server"
	"github.com/alanyoungcy/papertrade/internal/server/handler"
	"github.com/alanyoungcy/papertrade/internal/server/ws"
	"github.com/alanyoungcy/papertrade/internal/service"
)

// SessionLockKey guards the persisted session record against concurrent
// writers.
const SessionLockKey = "session:" + domain.StateKey

// FullMode runs the Finnhub feed, the trading session and the HTTP server in
// one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	release, err := a.holdSession(ctx, deps)
	if err != nil {
		return err
	}
	defer release()

	session := a.NewSession(deps)
	if err := session.Load(ctx); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	prices := a.newPriceService(deps).
		WithPublisher(deps.SignalBus, a.cfg.Feed.Provider).
		WithSink(session)
	if err := prices.LoadSnapshot(ctx); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	a.startFeed(ctx, g, prices)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, session)
	}

	return g.Wait()
}

// FeedMode runs only the Finnhub feed and publishes coalesced ticks on the
// signal bus for API processes to consume.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting feed mode")

	g, ctx := errgroup.WithContext(ctx)

	prices := a.newPriceService(deps).WithPublisher(deps.SignalBus, a.cfg.Feed.Provider)
	if err := prices.LoadSnapshot(ctx); err != nil {
		return fmt.Errorf("feed mode: %w", err)
	}

	a.startFeed(ctx, g, prices)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, nil)
	}

	return g.Wait()
}

// APIMode runs the trading session and the HTTP server, taking prices from
// the signal bus instead of dialing the feed.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting api mode")

	release, err := a.holdSession(ctx, deps)
	if err != nil {
		return err
	}
	defer release()

	session := a.NewSession(deps)
	if err := session.Load(ctx); err != nil {
		return fmt.Errorf("api mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if deps.Snapshotter != nil {
		prices := service.NewPriceService(a.cfg.Market.Symbols, deps.Snapshotter,
			a.logger.With(slog.String("component", "price_service"))).WithSink(session)
		if err := prices.LoadSnapshot(ctx); err != nil {
			return fmt.Errorf("api mode: %w", err)
		}
	}

	busFeed := feed.NewBusFeed(deps.SignalBus, session.ApplyTicks, a.logger).
		WithSnapshotHandler(session.SetQuotes)
	g.Go(func() error {
		return busFeed.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, session)
	}

	return g.Wait()
}

// holdSession takes the session lock for the lifetime of the process.
func (a *App) holdSession(ctx context.Context, deps *Dependencies) (func(), error) {
	release, err := deps.LockManager.Hold(ctx, SessionLockKey, a.cfg.Redis.LockTTL.Duration)
	if err != nil {
		return nil, fmt.Errorf("app: session lock: %w", err)
	}
	a.logger.InfoContext(ctx, "app: session lock acquired", slog.String("key", SessionLockKey))
	return release, nil
}

func (a *App) newPriceService(deps *Dependencies) *service.PriceService {
	prices := service.NewPriceService(a.cfg.Market.Symbols, deps.Snapshotter,
		a.logger.With(slog.String("component", "price_service")))
	if deps.PriceCache != nil {
		prices.WithCache(deps.PriceCache)
	}
	return prices
}

// startFeed streams trades through the coalescer into prices.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, prices *service.PriceService) {
	coalescer := feed.NewCoalescer(ctx, a.cfg.Feed.Debounce.Duration, a.cfg.Feed.MaxDelay.Duration, prices.HandleTicks)
	trades := feed.NewFinnhubFeed(
		a.cfg.Feed.WSURL,
		a.cfg.Feed.APIKey,
		a.cfg.Market.Symbols,
		a.cfg.Feed.ReconnectMin.Duration,
		a.cfg.Feed.ReconnectMax.Duration,
		coalescer.Add,
		a.logger,
	)

	g.Go(func() error {
		defer coalescer.Stop()
		defer trades.Close()
		return trades.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and, when a session is present, the
// WebSocket hub to the errgroup. The server is shut down gracefully when the
// context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, session *service.SessionService) {
	health := handler.NewHealthHandler(a.cfg.Mode, time.Now().UTC())
	for name, check := range deps.HealthChecks {
		health.WithCheck(name, check)
	}
	handlers := server.Handlers{Health: health}

	var hub *ws.Hub
	if session != nil {
		handlers.Session = handler.NewSessionHandler(session, a.logger)
		handlers.History = handler.NewHistoryHandler(deps.Journal, deps.Audit, deps.Notifier, a.logger)

		hub = ws.NewHub(deps.SignalBus, session.Portfolio, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
