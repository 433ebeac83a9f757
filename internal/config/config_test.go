package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "venuebook.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[feed]
stale_window = "45s"
retry_threshold = 5

[watch]
books = ["okx:BTCUSDT", "bybit:ETHUSDT"]

[redis]
enabled = false
`), 0o600))

	t.Setenv("VENUEBOOK_LOG_LEVEL", "debug")
	t.Setenv("VENUEBOOK_SIMULATION_HISTORY_SIZE", "20")
	t.Setenv("VENUEBOOK_WATCH_BOOKS", "deribit:BTC-PERPETUAL, okx:ETHUSDT")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Feed.StaleWindow.Duration)
	assert.Equal(t, 5, cfg.Feed.RetryThreshold)
	assert.Equal(t, time.Second, cfg.Feed.LinearCap.Duration)
	assert.Equal(t, 20, cfg.Simulation.HistorySize)

	keys, err := cfg.Watch.Keys()
	require.NoError(t, err)
	assert.Equal(t, []domain.BookKey{
		{Venue: domain.VenueDeribit, Instrument: "BTC-PERPETUAL"},
		{Venue: domain.VenueOKX, Instrument: "ETHUSDT"},
	}, keys)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Feed.BackoffJitter = 1.5
	cfg.Watch.Books = []string{"kraken:BTCUSD"}
	cfg.Simulation.Store = "s3"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "backoff_jitter")
	assert.Contains(t, msg, "watch: unknown venue")
	assert.Contains(t, msg, `unknown store "s3"`)
}

func TestValidate_ServerNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Enabled = false
	assert.ErrorContains(t, cfg.Validate(), "redis: must be enabled for mode server")

	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "hunter2"
	cfg.Server.APIKey = "key"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Supabase.Password)
	assert.Equal(t, "hunter2", cfg.Redis.Password)

	out.Watch.Books[0] = "changed"
	assert.Equal(t, "OKX:BTCUSDT", cfg.Watch.Books[0])
}
