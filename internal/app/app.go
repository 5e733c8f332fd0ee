// Package app provides the top-level application lifecycle management for the
// paper-trading simulator. It wires together all dependencies (state stores,
// caches, journals, blob storage, services, feeds and notifications) and
// starts the appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/config"
	"github.com/alanyoungcy/papertrade/internal/portfolio"
	"github.com/alanyoungcy/papertrade/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. Cleanup happens in Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("storage", a.cfg.Storage.Backend),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, err := a.Dependencies(ctx)
	if err != nil {
		return err
	}

	switch a.cfg.Mode {
	case "full":
		return a.FullMode(ctx, deps)
	case "feed":
		return a.FeedMode(ctx, deps)
	case "api":
		return a.APIMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Dependencies wires the dependencies on first use and returns them.
func (a *App) Dependencies(ctx context.Context) (*Dependencies, error) {
	if a.deps != nil {
		return a.deps, nil
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.deps = deps
	return deps, nil
}

// NewSession builds a session service over deps. The persisted state is not
// loaded yet.
func (a *App) NewSession(deps *Dependencies) *service.SessionService {
	svc := service.NewSessionService(
		portfolio.NewBook(BookOptions(a.cfg)),
		deps.StateStore,
		deps.SignalBus,
		deps.Notifier,
		a.cfg.Market.Currency,
		a.logger.With(slog.String("component", "session")),
	)
	if deps.Journal != nil {
		svc.WithJournal(deps.Journal)
	}
	if deps.Audit != nil {
		svc.WithAudit(deps.Audit)
	}
	if deps.Archiver != nil {
		svc.WithArchiver(deps.Archiver)
	}
	return svc
}

// LoadSession wires dependencies, builds the session and restores its
// persisted state.
func (a *App) LoadSession(ctx context.Context) (*service.SessionService, *Dependencies, error) {
	deps, err := a.Dependencies(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := a.NewSession(deps)
	if err := svc.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	return svc, deps, nil
}

// BookOptions maps the market and stop-loss configuration onto book options.
func BookOptions(cfg *config.Config) portfolio.Options {
	return portfolio.Options{
		Symbols:         cfg.Market.Symbols,
		InitialCash:     decimal.NewFromFloat(cfg.Market.InitialCash),
		Baseline:        portfolio.ChangeBaseline(cfg.Feed.ChangeBaseline),
		StopLossMode:    portfolio.StopLossMode(cfg.StopLoss.QuantityMode),
		DefaultQuantity: cfg.StopLoss.DefaultQuantity,
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.deps = nil
}
