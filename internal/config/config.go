// Package config defines the venuebook configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then optionally overridden by VENUEBOOK_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	Venues     VenuesConfig     `toml:"venues"`
	Feed       FeedConfig       `toml:"feed"`
	Watch      WatchConfig      `toml:"watch"`
	Simulation SimulationConfig `toml:"simulation"`
	Redis      RedisConfig      `toml:"redis"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// VenuesConfig overrides the public websocket endpoint per venue. Empty
// values keep the adapter defaults.
type VenuesConfig struct {
	OKX     string `toml:"okx_ws_url"`
	Bybit   string `toml:"bybit_ws_url"`
	Deribit string `toml:"deribit_ws_url"`
}

// FeedConfig holds the connection manager's timing policy.
type FeedConfig struct {
	StaleWindow         duration `toml:"stale_window"`
	StaleReconnectDelay duration `toml:"stale_reconnect_delay"`
	GracePeriod         duration `toml:"grace_period"`
	RetryThreshold      int      `toml:"retry_threshold"`
	LinearUnit          duration `toml:"linear_unit"`
	LinearCap           duration `toml:"linear_cap"`
	ErrorSignalDelay    duration `toml:"error_signal_delay"`
	DepthCritical       int      `toml:"depth_critical"`
	DepthWeakSide       int      `toml:"depth_weak_side"`
	DepthRecover        int      `toml:"depth_recover"`
	BackoffBase         duration `toml:"backoff_base"`
	BackoffFactor       float64  `toml:"backoff_factor"`
	BackoffCap          duration `toml:"backoff_cap"`
	BackoffJitter       float64  `toml:"backoff_jitter"`
}

// WatchConfig lists books to connect at startup, as "venue:instrument".
type WatchConfig struct {
	Books []string `toml:"books"`
}

// Keys parses Books. Venue names are matched case-insensitively.
func (w WatchConfig) Keys() ([]domain.BookKey, error) {
	keys := make([]domain.BookKey, 0, len(w.Books))
	for _, raw := range w.Books {
		k, err := domain.ParseBookKey(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		v, err := domain.ParseVenue(string(k.Venue))
		if err != nil {
			return nil, err
		}
		keys = append(keys, domain.BookKey{Venue: v, Instrument: k.Instrument})
	}
	return keys, nil
}

// SimulationConfig holds simulation history and warning thresholds.
type SimulationConfig struct {
	Store           string  `toml:"store"`
	HistorySize     int     `toml:"history_size"`
	WarnSlippageBps float64 `toml:"warn_slippage_bps"`
	WarnLevels      int     `toml:"warn_levels"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled         bool   `toml:"enabled"`
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the standard values.
func Defaults() Config {
	return Config{
		Mode:     "server",
		LogLevel: "info",
		Feed: FeedConfig{
			StaleWindow:         duration{30 * time.Second},
			StaleReconnectDelay: duration{time.Second},
			GracePeriod:         duration{5 * time.Second},
			RetryThreshold:      3,
			LinearUnit:          duration{250 * time.Millisecond},
			LinearCap:           duration{time.Second},
			ErrorSignalDelay:    duration{time.Second},
			DepthCritical:       8,
			DepthWeakSide:       5,
			DepthRecover:        12,
			BackoffBase:         duration{500 * time.Millisecond},
			BackoffFactor:       1.8,
			BackoffCap:          duration{10 * time.Second},
			BackoffJitter:       0.3,
		},
		Watch: WatchConfig{
			Books: []string{"OKX:BTCUSDT"},
		},
		Simulation: SimulationConfig{
			Store:           "memory",
			HistorySize:     50,
			WarnSlippageBps: 12,
			WarnLevels:      10,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 600,
		},
		Notify: NotifyConfig{
			Events: []string{"signal.stale", "signal.unstable", "signal.error", "simulation.failed"},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "venuebook",
		},
	}
}

var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStores = map[string]bool{
	"memory":   true,
	"postgres": true,
}

// Validate returns one error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	f := c.Feed
	for _, d := range []struct {
		name string
		val  duration
	}{
		{"stale_window", f.StaleWindow},
		{"stale_reconnect_delay", f.StaleReconnectDelay},
		{"linear_unit", f.LinearUnit},
		{"linear_cap", f.LinearCap},
		{"backoff_base", f.BackoffBase},
		{"backoff_cap", f.BackoffCap},
	} {
		if d.val.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("feed: %s must be > 0", d.name))
		}
	}
	if f.GracePeriod.Duration < 0 || f.ErrorSignalDelay.Duration < 0 {
		errs = append(errs, "feed: grace_period and error_signal_delay must be >= 0")
	}
	if f.RetryThreshold < 0 {
		errs = append(errs, "feed: retry_threshold must be >= 0")
	}
	if f.DepthCritical < 0 || f.DepthWeakSide < 0 {
		errs = append(errs, "feed: depth thresholds must be >= 0")
	}
	if f.DepthRecover < f.DepthCritical {
		errs = append(errs, "feed: depth_recover must be >= depth_critical")
	}
	if f.BackoffFactor < 1 {
		errs = append(errs, "feed: backoff_factor must be >= 1")
	}
	if f.BackoffJitter < 0 || f.BackoffJitter >= 1 {
		errs = append(errs, "feed: backoff_jitter must be in [0, 1)")
	}

	// Watch
	if _, err := c.Watch.Keys(); err != nil {
		errs = append(errs, "watch: "+err.Error())
	}

	// Simulation
	if !validStores[strings.ToLower(c.Simulation.Store)] {
		errs = append(errs, fmt.Sprintf("simulation: unknown store %q (valid: memory, postgres)", c.Simulation.Store))
	}
	if c.Simulation.HistorySize < 1 {
		errs = append(errs, "simulation: history_size must be >= 1")
	}
	if c.Simulation.WarnSlippageBps < 0 || c.Simulation.WarnLevels < 0 {
		errs = append(errs, "simulation: warning thresholds must be >= 0")
	}

	// Redis
	if strings.EqualFold(c.Mode, "server") && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled for mode server")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Supabase
	if c.UsesPostgres() {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// UsesPostgres reports whether simulation history is kept in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return strings.EqualFold(c.Simulation.Store, "postgres")
}
