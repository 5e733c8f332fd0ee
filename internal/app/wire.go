package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/papertrade/internal/blob/s3"
	"github.com/alanyoungcy/papertrade/internal/cache/memory"
	"github.com/alanyoungcy/papertrade/internal/cache/redis"
	"github.com/alanyoungcy/papertrade/internal/config"
	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/notify"
	"github.com/alanyoungcy/papertrade/internal/platform/finnhub"
	"github.com/alanyoungcy/papertrade/internal/platform/polygon"
	"github.com/alanyoungcy/papertrade/internal/server/handler"
	"github.com/alanyoungcy/papertrade/internal/service"
	"github.com/alanyoungcy/papertrade/internal/store/postgres"
	"github.com/alanyoungcy/papertrade/internal/store/sqlite"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional dependencies are nil when not configured.
type Dependencies struct {
	// Persistence
	StateStore domain.StateStore
	Journal    domain.OrderJournal
	Audit      domain.AuditStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver *s3blob.Archiver

	// Prices
	Snapshotter service.Snapshotter

	// Notifications
	Notifier *notify.Notifier

	// Probes of the external backends, keyed by name.
	HealthChecks map[string]handler.HealthCheck
}

// needsSession returns true for modes that own the trading session.
func needsSession(mode string) bool {
	return mode != "feed"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheck{}}

	// --- Redis, or in-process stand-ins ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.HealthChecks["redis"] = redisClient.Health

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.ChannelPrefix)
	} else {
		deps.RateLimiter = memory.NewRateLimiter()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewBus()
	}

	// --- PostgreSQL ---
	var pgClient *postgres.Client
	if cfg.Postgres.Enabled {
		var err error
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.HealthChecks["postgres"] = pgClient.Health

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Journal = postgres.NewOrderJournal(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}

	// --- Session state, journal and audit fallbacks ---
	if needsSession(cfg.Mode) {
		switch cfg.Storage.Backend {
		case "sqlite":
			store, err := sqlite.Open(cfg.Storage.SQLitePath)
			if err != nil {
				return fail(fmt.Errorf("wire: sqlite: %w", err))
			}
			closers = append(closers, func() { _ = store.Close() })
			deps.StateStore = store
			if deps.Journal == nil {
				deps.Journal = store
			}
			if deps.Audit == nil {
				deps.Audit = store.Audit()
			}
		case "redis":
			deps.StateStore = redis.NewStateStore(redisClient)
		case "postgres":
			deps.StateStore = postgres.NewStateStore(pgClient.Pool())
		case "memory":
			deps.StateStore = memory.NewStateStore()
		default:
			return fail(fmt.Errorf("wire: unknown storage backend %q", cfg.Storage.Backend))
		}

		if deps.Journal == nil && redisClient != nil {
			deps.Journal = redis.NewOrderStream(redisClient, streamName(cfg.Redis.ChannelPrefix, domain.ChannelOrders))
		}
	}

	// --- S3 session archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = s3Client.Health
		bucket := s3blob.NewBucket(s3Client)
		deps.Archiver = s3blob.NewArchiver(bucket, bucket, cfg.S3.Prefix)
	}

	// --- Price snapshot ---
	snap, err := NewSnapshotter(cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: snapshot provider: %w", err))
	}
	deps.Snapshotter = snap

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, deps.SignalBus, logger)

	return deps, cleanup, nil
}

// NewSnapshotter returns the configured one-shot quote source, or nil when no
// credentials are available.
func NewSnapshotter(cfg *config.Config) (service.Snapshotter, error) {
	switch cfg.Feed.SnapshotProvider {
	case "polygon":
		client, err := polygon.NewClient(cfg.Polygon.APIKey)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		if cfg.Feed.APIKey == "" {
			return nil, nil
		}
		return finnhub.NewClient(cfg.Feed.RestURL, cfg.Feed.APIKey), nil
	}
}

func streamName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}
