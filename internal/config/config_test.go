package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Feed.APIKey = "fh-key"
	return cfg
}

func TestDefaultsValidateWithFeedKey(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Feed.APIKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: api_key is required for mode full")
}

func TestApiModeNeedsNoFeedKeyButRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "api"
	err := cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "feed: api_key")
	assert.Contains(t, err.Error(), "redis: must be enabled for mode api")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateOfflineSkipsLiveRequirements(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.ValidateOffline())

	cfg.Mode = "api"
	assert.NoError(t, cfg.ValidateOffline())

	cfg.Storage.Backend = "redis"
	err := cfg.ValidateOffline()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage: backend redis requires redis.enabled")
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.Market.Symbols = nil
	cfg.Market.InitialCash = 0
	cfg.Storage.Backend = "postgres"
	cfg.Feed.ChangeBaseline = "open"
	cfg.StopLoss.QuantityMode = "half"
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "trade"`,
		"market: symbols failed min",
		"market: initialcash failed gt",
		"storage: backend postgres requires postgres.enabled",
		`feed: unknown change_baseline "open"`,
		`stoploss: unknown quantity_mode "half"`,
		"notify: telegram_token and telegram_chat_id must be set together",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidatePolygonSnapshotNeedsKey(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.SnapshotProvider = "polygon"
	require.ErrorContains(t, cfg.Validate(), "polygon: api_key is required")

	cfg.Polygon.APIKey = "pg"
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "FULL"

[market]
symbols = ["aapl", " msft "]
initial_cash = 250000.0

[feed]
api_key = "from-file"
debounce = "150ms"

[stoploss]
quantity_mode = "input"
default_quantity = 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Market.Symbols)
	assert.Equal(t, 250000.0, cfg.Market.InitialCash)
	assert.Equal(t, "USD", cfg.Market.Currency)
	assert.Equal(t, 150*time.Millisecond, cfg.Feed.Debounce.Duration)
	assert.Equal(t, time.Second, cfg.Feed.MaxDelay.Duration)
	assert.Equal(t, "input", cfg.StopLoss.QuantityMode)
	assert.Equal(t, int64(5), cfg.StopLoss.DefaultQuantity)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[feed]
api_key = "from-file"
`)
	t.Setenv("PAPERTRADE_FEED_API_KEY", "from-env")
	t.Setenv("PAPERTRADE_REDIS_ENABLED", "true")
	t.Setenv("PAPERTRADE_STORAGE_BACKEND", "redis")
	t.Setenv("PAPERTRADE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PAPERTRADE_FEED_DEBOUNCE", "250ms")
	t.Setenv("PAPERTRADE_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Feed.APIKey)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.Debounce.Duration)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 100000.0, cfg.Market.InitialCash)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[market]
symbolz = ["AAPL"]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market.symbolz")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, `
[feed]
debounce = "soon"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = "srv"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.S3.SecretKey = "s3"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Feed.APIKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Empty(t, out.Polygon.APIKey)

	out.Market.Symbols[0] = "ZZZ"
	assert.Equal(t, "AAPL", cfg.Market.Symbols[0])
	assert.Equal(t, "fh-key", cfg.Feed.APIKey)
}
