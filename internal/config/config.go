// Package config defines the top-level configuration for the paper-trading
// simulator and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAPERTRADE_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Market   MarketConfig   `toml:"market"`
	Feed     FeedConfig     `toml:"feed"`
	Polygon  PolygonConfig  `toml:"polygon"`
	StopLoss StopLossConfig `toml:"stoploss"`
	Storage  StorageConfig  `toml:"storage"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
}

// MarketConfig describes the tradable universe and the session bankroll.
type MarketConfig struct {
	Symbols     []string `toml:"symbols" validate:"min=1,dive,required,alpha,max=10"`
	InitialCash float64  `toml:"initial_cash" validate:"gt=0"`
	Currency    string   `toml:"currency" validate:"len=3"`
}

// FeedConfig holds the price feed endpoints and timing.
type FeedConfig struct {
	Provider         string   `toml:"provider"`
	APIKey           string   `toml:"api_key"`
	RestURL          string   `toml:"rest_url"`
	WSURL            string   `toml:"ws_url"`
	SnapshotProvider string   `toml:"snapshot_provider"`
	Debounce         duration `toml:"debounce"`
	MaxDelay         duration `toml:"max_delay"`
	ReconnectMin     duration `toml:"reconnect_min"`
	ReconnectMax     duration `toml:"reconnect_max"`
	ChangeBaseline   string   `toml:"change_baseline"`
}

// PolygonConfig holds Polygon.io credentials for the alternative snapshot.
type PolygonConfig struct {
	APIKey string `toml:"api_key"`
}

// StopLossConfig controls how many shares a triggered stop-loss sells.
type StopLossConfig struct {
	QuantityMode    string `toml:"quantity_mode"`
	DefaultQuantity int64  `toml:"default_quantity" validate:"gte=1"`
}

// StorageConfig selects where the session state is persisted.
type StorageConfig struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	ChannelPrefix string   `toml:"channel_prefix"`
	PriceTTL      duration `toml:"price_ttl"`
	LockTTL       duration `toml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for session archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "200ms", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Market: MarketConfig{
			Symbols:     []string{"AAPL", "GOOGL", "AMZN", "MSFT", "TSLA"},
			InitialCash: 100000,
			Currency:    "USD",
		},
		Feed: FeedConfig{
			Provider:         "finnhub",
			RestURL:          "https://finnhub.io/api/v1",
			WSURL:            "wss://ws.finnhub.io",
			SnapshotProvider: "finnhub",
			Debounce:         duration{200 * time.Millisecond},
			MaxDelay:         duration{time.Second},
			ReconnectMin:     duration{time.Second},
			ReconnectMax:     duration{30 * time.Second},
			ChangeBaseline:   "previous",
		},
		StopLoss: StopLossConfig{
			QuantityMode:    "position",
			DefaultQuantity: 1,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "papertrade.db",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			ChannelPrefix: "papertrade",
			PriceTTL:      duration{time.Hour},
			LockTTL:       duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "postgres",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "papertrade-sessions",
			ForcePathStyle: true,
			Prefix:         "sessions",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_success", "order_error", "stoploss", "reset"},
		},
	}
}

var (
	validModes         = map[string]bool{"full": true, "feed": true, "api": true}
	validLogLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validBackends      = map[string]bool{"sqlite": true, "redis": true, "postgres": true, "memory": true}
	validSnapshots     = map[string]bool{"finnhub": true, "polygon": true}
	validBaselines     = map[string]bool{"previous": true, "close": true}
	validStopLossModes = map[string]bool{"position": true, "input": true}
	validNotifyEvents  = map[string]bool{"order_success": true, "order_error": true, "stoploss": true, "reset": true}
	structValidator    = validator.New(validator.WithRequiredStructEnabled())
)

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateOffline is Validate without the requirements of the live feed and
// the shared bus. Offline CLI commands only touch storage.
func (c *Config) ValidateOffline() error {
	return c.validate(false)
}

func (c *Config) validate(live bool) error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, feed, api)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	errs = append(errs, structErrors("market", c.Market)...)
	errs = append(errs, structErrors("stoploss", c.StopLoss)...)

	// Feed
	if c.Feed.Provider != "finnhub" {
		errs = append(errs, fmt.Sprintf("feed: unknown provider %q (valid: finnhub)", c.Feed.Provider))
	}
	if live && c.Mode != "api" && c.Feed.APIKey == "" {
		errs = append(errs, "feed: api_key is required for mode "+c.Mode)
	}
	if !validSnapshots[c.Feed.SnapshotProvider] {
		errs = append(errs, fmt.Sprintf("feed: unknown snapshot_provider %q (valid: finnhub, polygon)", c.Feed.SnapshotProvider))
	}
	if c.Feed.SnapshotProvider == "polygon" && c.Polygon.APIKey == "" {
		errs = append(errs, "polygon: api_key is required when feed.snapshot_provider is polygon")
	}
	if !validBaselines[c.Feed.ChangeBaseline] {
		errs = append(errs, fmt.Sprintf("feed: unknown change_baseline %q (valid: previous, close)", c.Feed.ChangeBaseline))
	}
	if c.Feed.Debounce.Duration <= 0 {
		errs = append(errs, "feed: debounce must be > 0")
	}
	if c.Feed.MaxDelay.Duration < c.Feed.Debounce.Duration {
		errs = append(errs, "feed: max_delay must not be shorter than debounce")
	}
	if c.Feed.ReconnectMin.Duration <= 0 || c.Feed.ReconnectMax.Duration < c.Feed.ReconnectMin.Duration {
		errs = append(errs, "feed: reconnect_min must be > 0 and not exceed reconnect_max")
	}

	// StopLoss
	if !validStopLossModes[c.StopLoss.QuantityMode] {
		errs = append(errs, fmt.Sprintf("stoploss: unknown quantity_mode %q (valid: position, input)", c.StopLoss.QuantityMode))
	}

	// Storage
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: sqlite, redis, postgres, memory)", c.Storage.Backend))
	}
	if c.Storage.Backend == "sqlite" && strings.TrimSpace(c.Storage.SQLitePath) == "" {
		errs = append(errs, "storage: sqlite_path must not be empty for the sqlite backend")
	}
	if c.Storage.Backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "storage: backend redis requires redis.enabled")
	}
	if c.Storage.Backend == "postgres" && !c.Postgres.Enabled {
		errs = append(errs, "storage: backend postgres requires postgres.enabled")
	}

	// Redis
	if live && (c.Mode == "feed" || c.Mode == "api") && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled for mode "+c.Mode)
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration < time.Second {
			errs = append(errs, "redis: lock_ttl must be at least 1s")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validNotifyEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// structErrors runs tag validation on a section and formats each failure as
// "section: field failed tag".
func structErrors(section string, v any) []string {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("%s: %v", section, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: %s failed %s", section, strings.ToLower(fe.Field()), fe.Tag()))
	}
	return out
}
