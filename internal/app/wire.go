package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/venuebook/internal/cache/redis"
	"github.com/alanyoungcy/venuebook/internal/config"
	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/metrics"
	"github.com/alanyoungcy/venuebook/internal/notify"
	"github.com/alanyoungcy/venuebook/internal/store/memory"
	"github.com/alanyoungcy/venuebook/internal/store/postgres"
)

// Dependencies bundles the backends the modes run on. Interface fields are
// nil when the backend is disabled.
type Dependencies struct {
	SimulationStore domain.SimulationStore

	BookCache   domain.OrderbookCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics // nil when metrics are disabled
}

// Wire builds Dependencies from cfg and returns a cleanup function that
// releases them in reverse order.
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

	deps := &Dependencies{
		Notifier: notify.NewNotifier(senders(cfg.Notify), cfg.Notify.Events, logger),
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	store, closeStore, err := wireStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	deps.SimulationStore = store
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, redis.ClientConfig{
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
		closers = append(closers, func() { _ = client.Close() })

		deps.BookCache = redis.NewOrderbookCache(client, time.Duration(cfg.Redis.CacheTTLMinutes)*time.Minute)
		deps.SignalBus = redis.NewSignalBus(client)
		deps.RateLimiter = redis.NewRateLimiter(client)
	}

	return deps, cleanup, nil
}

// wireStore returns the postgres history store when configured, otherwise
// the in-memory ring. The close func is nil for the memory store.
func wireStore(ctx context.Context, cfg *config.Config) (domain.SimulationStore, func(), error) {
	if !cfg.UsesPostgres() {
		return memory.NewSimulationStore(cfg.Simulation.HistorySize), nil, nil
	}

	sb := cfg.Supabase
	client, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      sb.DSN,
		Host:     sb.Host,
		Port:     sb.Port,
		Database: sb.Database,
		User:     sb.User,
		Password: sb.Password,
		SSLMode:  sb.SSLMode,
		MaxConns: sb.PoolMaxConns,
		MinConns: sb.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	if sb.RunMigrations {
		if err := client.RunMigrations(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	return postgres.NewSimulationStore(client.Pool()), client.Close, nil
}

// senders lists the notification channels that have credentials.
func senders(cfg config.NotifyConfig) []notify.Sender {
	var out []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		out = append(out, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return out
}
