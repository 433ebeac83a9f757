package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/feed"
	"github.com/alanyoungcy/venuebook/internal/simulator"
	"github.com/google/uuid"
)

const recordTimeout = 5 * time.Second

// BookSource returns the latest canonical book for a key.
type BookSource interface {
	Latest(key domain.BookKey) (domain.OrderBook, error)
}

// SimulationMetrics receives completed simulations.
type SimulationMetrics interface {
	Simulation(res domain.SimulationResult)
}

type nopSimulationMetrics struct{}

func (nopSimulationMetrics) Simulation(domain.SimulationResult) {}

// SimulationConfig holds the warning thresholds.
type SimulationConfig struct {
	WarnSlippageBps float64
	WarnLevels      int
}

// DefaultSimulationConfig returns the 12 bps / 10 level thresholds.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{WarnSlippageBps: 12, WarnLevels: 10}
}

// Submission is the outcome of Submit: a result for immediate requests, a
// pending entry for delayed ones.
type Submission struct {
	Result  *domain.SimulationResult  `json:"result,omitempty"`
	Pending *domain.PendingSimulation `json:"pending,omitempty"`
}

type pendingEntry struct {
	sim  domain.PendingSimulation
	task feed.Task
}

// SimulationService validates simulation requests, runs them against the
// latest book now or after the requested delay, and records the results.
type SimulationService struct {
	books   BookSource
	store   domain.SimulationStore
	sched   feed.Scheduler
	pub     *Publisher
	metrics SimulationMetrics
	cfg     SimulationConfig
	logger  *slog.Logger
	newID   func() string

	mu      sync.Mutex
	pending map[string]pendingEntry
	wg      sync.WaitGroup
}

// NewSimulationService creates a SimulationService. metrics may be nil.
func NewSimulationService(
	books BookSource,
	store domain.SimulationStore,
	sched feed.Scheduler,
	pub *Publisher,
	metrics SimulationMetrics,
	cfg SimulationConfig,
	logger *slog.Logger,
) *SimulationService {
	if metrics == nil {
		metrics = nopSimulationMetrics{}
	}
	return &SimulationService{
		books:   books,
		store:   store,
		sched:   sched,
		pub:     pub,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "simulation_service")),
		newID:   uuid.NewString,
		pending: make(map[string]pendingEntry),
	}
}

// Submit validates req and either runs it immediately (Delay == 0) or
// schedules it. An immediate request against a key with no book fails with
// domain.ErrNoBook.
func (s *SimulationService) Submit(ctx context.Context, req domain.SimulationRequest) (Submission, error) {
	if err := req.Validate(); err != nil {
		return Submission{}, err
	}
	if _, err := domain.ParseVenue(string(req.Key.Venue)); err != nil {
		return Submission{}, fmt.Errorf("simulation_service: %w", err)
	}

	if req.Delay == 0 {
		ob, err := s.books.Latest(req.Key)
		if err != nil {
			return Submission{}, fmt.Errorf("simulation_service: run: %w", err)
		}
		res := s.evaluate(s.newID(), req, ob)
		if err := s.record(ctx, res); err != nil {
			return Submission{}, err
		}
		return Submission{Result: &res}, nil
	}

	p := s.schedule(req)
	return Submission{Pending: &p}, nil
}

func (s *SimulationService) schedule(req domain.SimulationRequest) domain.PendingSimulation {
	p := domain.PendingSimulation{
		ID:         s.newID(),
		Venue:      req.Key.Venue,
		Instrument: req.Key.Instrument,
		Request:    req,
		DueAt:      s.sched.Now().Add(req.Delay).UTC(),
	}

	s.mu.Lock()
	task := s.sched.After(req.Delay, func() { s.fire(p.ID) })
	s.pending[p.ID] = pendingEntry{sim: p, task: task}
	s.mu.Unlock()

	s.logger.Info("simulation_service: scheduled",
		slog.String("id", p.ID),
		slog.String("key", req.Key.String()),
		slog.Duration("delay", req.Delay),
	)
	return p
}

// fire runs on the scheduler. Recording happens off the loop.
func (s *SimulationService) fire(id string) {
	s.mu.Lock()
	entry, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	req := entry.sim.Request
	ob, err := s.books.Latest(req.Key)
	if err != nil {
		s.logger.Warn("simulation_service: delayed simulation failed, no live data",
			slog.String("id", id),
			slog.String("key", req.Key.String()),
		)
		s.pub.Enqueue(domain.ChannelSimulation, domain.Event{
			Type:       domain.EventSimFailed,
			Venue:      req.Key.Venue,
			Instrument: req.Key.Instrument,
			Error:      "no live data at execution time",
			At:         s.sched.Now().UTC(),
		})
		return
	}

	res := s.evaluate(id, req, ob)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.record(ctx, res); err != nil {
			s.logger.Error("simulation_service: record delayed result failed",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (s *SimulationService) evaluate(id string, req domain.SimulationRequest, ob domain.OrderBook) domain.SimulationResult {
	fill := simulator.Simulate(ob, req.Side, req.OrderType, req.LimitPrice, req.Quantity)
	return domain.SimulationResult{
		ID:         id,
		Venue:      req.Key.Venue,
		Instrument: req.Key.Instrument,
		Request:    req,
		Fill:       fill,
		Warning:    fill.SlippageBps > s.cfg.WarnSlippageBps || fill.LevelsTouched > s.cfg.WarnLevels,
		ProducedAt: s.sched.Now().UTC(),
	}
}

func (s *SimulationService) record(ctx context.Context, res domain.SimulationResult) error {
	if err := s.store.Append(ctx, res); err != nil {
		return fmt.Errorf("simulation_service: append %s: %w", res.ID, err)
	}
	s.metrics.Simulation(res)
	s.pub.Enqueue(domain.ChannelSimulation, domain.Event{
		Type:       domain.EventSimulation,
		Venue:      res.Venue,
		Instrument: res.Instrument,
		Simulation: &res,
		At:         res.ProducedAt,
	})
	return nil
}

// Pending returns the scheduled simulations, soonest first.
func (s *SimulationService) Pending() []domain.PendingSimulation {
	s.mu.Lock()
	out := make([]domain.PendingSimulation, 0, len(s.pending))
	for _, e := range s.pending {
		out = append(out, e.sim)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b domain.PendingSimulation) int {
		return a.DueAt.Compare(b.DueAt)
	})
	return out
}

// Cancel drops a pending simulation. It returns domain.ErrNotFound if id is
// not pending.
func (s *SimulationService) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("simulation_service: cancel %s: %w", id, domain.ErrNotFound)
	}
	entry.task.Cancel()
	delete(s.pending, id)
	return nil
}

// History returns up to limit recent results, newest first.
func (s *SimulationService) History(ctx context.Context, limit int) ([]domain.SimulationResult, error) {
	res, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("simulation_service: history: %w", err)
	}
	return res, nil
}

// Get returns one recorded result.
func (s *SimulationService) Get(ctx context.Context, id string) (domain.SimulationResult, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SimulationResult{}, err
		}
		return domain.SimulationResult{}, fmt.Errorf("simulation_service: get %s: %w", id, err)
	}
	return res, nil
}

// Close cancels every pending simulation and waits for in-flight recording.
func (s *SimulationService) Close() {
	s.mu.Lock()
	for id, e := range s.pending {
		e.task.Cancel()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
