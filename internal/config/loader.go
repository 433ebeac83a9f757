package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, then applies VENUEBOOK_*
// environment overrides (a .env file in the working directory is loaded
// first when present). An empty path skips the file. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose VENUEBOOK_* variable is set and
// non-empty.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "VENUEBOOK_MODE")
	setStr(&cfg.LogLevel, "VENUEBOOK_LOG_LEVEL")

	// ── Venues ──
	setStr(&cfg.Venues.OKX, "VENUEBOOK_VENUES_OKX_WS_URL")
	setStr(&cfg.Venues.Bybit, "VENUEBOOK_VENUES_BYBIT_WS_URL")
	setStr(&cfg.Venues.Deribit, "VENUEBOOK_VENUES_DERIBIT_WS_URL")

	// ── Feed ──
	setDuration(&cfg.Feed.StaleWindow, "VENUEBOOK_FEED_STALE_WINDOW")
	setDuration(&cfg.Feed.StaleReconnectDelay, "VENUEBOOK_FEED_STALE_RECONNECT_DELAY")
	setDuration(&cfg.Feed.GracePeriod, "VENUEBOOK_FEED_GRACE_PERIOD")
	setInt(&cfg.Feed.RetryThreshold, "VENUEBOOK_FEED_RETRY_THRESHOLD")
	setDuration(&cfg.Feed.ErrorSignalDelay, "VENUEBOOK_FEED_ERROR_SIGNAL_DELAY")
	setDuration(&cfg.Feed.BackoffCap, "VENUEBOOK_FEED_BACKOFF_CAP")

	// ── Watch ──
	setStringSlice(&cfg.Watch.Books, "VENUEBOOK_WATCH_BOOKS")

	// ── Simulation ──
	setStr(&cfg.Simulation.Store, "VENUEBOOK_SIMULATION_STORE")
	setInt(&cfg.Simulation.HistorySize, "VENUEBOOK_SIMULATION_HISTORY_SIZE")
	setFloat64(&cfg.Simulation.WarnSlippageBps, "VENUEBOOK_SIMULATION_WARN_SLIPPAGE_BPS")
	setInt(&cfg.Simulation.WarnLevels, "VENUEBOOK_SIMULATION_WARN_LEVELS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "VENUEBOOK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "VENUEBOOK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VENUEBOOK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VENUEBOOK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VENUEBOOK_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "VENUEBOOK_REDIS_TLS_ENABLED")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "VENUEBOOK_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "VENUEBOOK_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "VENUEBOOK_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "VENUEBOOK_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "VENUEBOOK_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "VENUEBOOK_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "VENUEBOOK_SUPABASE_SSL_MODE")
	setBool(&cfg.Supabase.RunMigrations, "VENUEBOOK_SUPABASE_RUN_MIGRATIONS")

	// ── Server ──
	setInt(&cfg.Server.Port, "VENUEBOOK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VENUEBOOK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VENUEBOOK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "VENUEBOOK_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VENUEBOOK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VENUEBOOK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VENUEBOOK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VENUEBOOK_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "VENUEBOOK_METRICS_ENABLED")
	setStr(&cfg.Metrics.Namespace, "VENUEBOOK_METRICS_NAMESPACE")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
