package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/venuebook/internal/backoff"
	"github.com/alanyoungcy/venuebook/internal/config"
	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/feed"
	"github.com/alanyoungcy/venuebook/internal/platform/bybit"
	"github.com/alanyoungcy/venuebook/internal/platform/deribit"
	"github.com/alanyoungcy/venuebook/internal/platform/okx"
	"github.com/alanyoungcy/venuebook/internal/platform/wsconn"
	"github.com/alanyoungcy/venuebook/internal/server"
	"github.com/alanyoungcy/venuebook/internal/server/handler"
	"github.com/alanyoungcy/venuebook/internal/server/ws"
	"github.com/alanyoungcy/venuebook/internal/service"
	"github.com/alanyoungcy/venuebook/internal/venue"
)

const shutdownTimeout = 5 * time.Second

// runtime is the feed pipeline shared by both modes.
type runtime struct {
	loop      *feed.Loop
	publisher *service.Publisher
	books     *service.BookService
	sims      *service.SimulationService
	manager   *feed.Manager
	registry  *venue.Registry
}

// ServerMode runs the feeds, the HTTP API and the WebSocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	if deps.SignalBus == nil {
		return errors.New("app: server mode requires redis")
	}

	g, ctx := errgroup.WithContext(ctx)
	rt := a.buildRuntime(deps)
	a.startRuntime(ctx, g, rt)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: a.startedAt})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(rt.books),
		Status:      handler.NewStatusHandler(a.cfg.Mode, rt.registry.Venues(), a.startedAt, rt.books),
		Books:       handler.NewBookHandler(rt.books, rt.manager, a.logger),
		Signals:     handler.NewSignalHandler(rt.books),
		Simulations: handler.NewSimulationHandler(rt.sims, a.logger),
	}
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MonitorMode runs the feeds only. Events are logged and forwarded to the
// notifier; /metrics is served when enabled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	rt := a.buildRuntime(deps)
	rt.publisher.AddListener(a.logEvent)
	a.startRuntime(ctx, g, rt)

	if deps.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", deps.Metrics.Handler())
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.logger.InfoContext(ctx, "metrics listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}

func (a *App) buildRuntime(deps *Dependencies) *runtime {
	rt := &runtime{loop: feed.NewLoop()}

	rt.publisher = service.NewPublisher(deps.SignalBus, deps.BookCache, a.logger)
	if deps.Notifier.Enabled() {
		rt.publisher.AddListener(deps.Notifier.HandleEvent)
	}

	var (
		bookMetrics service.BookMetrics
		simMetrics  service.SimulationMetrics
		feedMetrics feed.Metrics
	)
	if deps.Metrics != nil {
		bookMetrics, simMetrics, feedMetrics = deps.Metrics, deps.Metrics, deps.Metrics
		rt.publisher.OnDrop(deps.Metrics.EventDropped)
	}

	rt.books = service.NewBookService(rt.publisher, bookMetrics, a.logger)
	rt.sims = service.NewSimulationService(
		rt.books,
		deps.SimulationStore,
		rt.loop,
		rt.publisher,
		simMetrics,
		service.SimulationConfig{
			WarnSlippageBps: a.cfg.Simulation.WarnSlippageBps,
			WarnLevels:      a.cfg.Simulation.WarnLevels,
		},
		a.logger,
	)

	rt.registry = venue.NewRegistry(
		okx.New(okx.WithEndpoint(a.cfg.Venues.OKX)),
		bybit.New(bybit.WithEndpoint(a.cfg.Venues.Bybit)),
		deribit.New(deribit.WithEndpoint(a.cfg.Venues.Deribit)),
	)
	rt.manager = feed.NewManager(feed.ManagerConfig{
		Scheduler: rt.loop,
		Transport: wsconn.New(a.logger),
		Registry:  rt.registry,
		Sink:      rt.books,
		Options:   feedOptions(a.cfg.Feed),
		Metrics:   feedMetrics,
		Logger:    a.logger,
	})
	return rt
}

// startRuntime runs the loop and publisher, connects the watch list, and
// tears the feeds down once ctx is done. The loop outlives ctx so the
// teardown can still run on it.
func (a *App) startRuntime(ctx context.Context, g *errgroup.Group, rt *runtime) {
	loopCtx, stopLoop := context.WithCancel(context.Background())

	g.Go(func() error {
		err := rt.loop.Run(loopCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return rt.publisher.Run(ctx)
	})

	keys, err := a.cfg.Watch.Keys()
	if err != nil {
		a.logger.WarnContext(ctx, "invalid watch list, starting without books",
			slog.String("error", err.Error()),
		)
	}
	for _, key := range keys {
		a.logger.InfoContext(ctx, "connecting book", slog.String("key", key.String()))
		rt.manager.Connect(key)
	}

	g.Go(func() error {
		<-ctx.Done()
		rt.sims.Close()
		rt.manager.Close()
		stopLoop()
		return nil
	})
}

// logEvent is the monitor-mode listener.
func (a *App) logEvent(ctx context.Context, evt domain.Event) {
	attrs := []any{
		slog.String("type", string(evt.Type)),
		slog.String("venue", string(evt.Venue)),
		slog.String("instrument", evt.Instrument),
	}
	switch evt.Type {
	case domain.EventBook:
		if evt.Book != nil {
			attrs = append(attrs, slog.Int("levels", evt.Book.Levels()))
		}
		a.logger.DebugContext(ctx, "book update", attrs...)
	case domain.EventStatus:
		a.logger.InfoContext(ctx, "feed status", append(attrs, slog.String("state", string(evt.State)))...)
	case domain.EventSignalRaised:
		if evt.Signal != nil {
			attrs = append(attrs,
				slog.String("kind", string(evt.Signal.Kind)),
				slog.String("severity", string(evt.Signal.Severity)),
				slog.String("message", evt.Signal.Message),
			)
		}
		a.logger.WarnContext(ctx, "signal raised", attrs...)
	case domain.EventSignalCleared:
		a.logger.InfoContext(ctx, "signal cleared", append(attrs, slog.String("kind", string(evt.SignalKind)))...)
	default:
		a.logger.InfoContext(ctx, "event", attrs...)
	}
}

// feedOptions maps the [feed] section onto the manager's timing policy.
func feedOptions(c config.FeedConfig) feed.Options {
	b := backoff.New()
	b.Base = c.BackoffBase.Duration
	b.Factor = c.BackoffFactor
	b.Cap = c.BackoffCap.Duration
	b.Jitter = c.BackoffJitter

	return feed.Options{
		StaleWindow:         c.StaleWindow.Duration,
		StaleReconnectDelay: c.StaleReconnectDelay.Duration,
		GracePeriod:         c.GracePeriod.Duration,
		RetryThreshold:      c.RetryThreshold,
		LinearUnit:          c.LinearUnit.Duration,
		LinearCap:           c.LinearCap.Duration,
		ErrorSignalDelay:    c.ErrorSignalDelay.Duration,
		Depth: feed.DepthThresholds{
			Critical: c.DepthCritical,
			WeakSide: c.DepthWeakSide,
			Recover:  c.DepthRecover,
		},
		Backoff: b,
	}
}
