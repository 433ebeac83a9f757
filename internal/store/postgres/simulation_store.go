package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

// SimulationStore implements domain.SimulationStore using PostgreSQL.
type SimulationStore struct {
	pool *pgxpool.Pool
}

// NewSimulationStore creates a SimulationStore backed by pool.
func NewSimulationStore(pool *pgxpool.Pool) *SimulationStore {
	return &SimulationStore{pool: pool}
}

const simulationColumns = `id, venue, instrument, side, order_type, limit_price, quantity, delay_ms,
	fill_percent, average_price, slippage_bps, levels_touched, warning, produced_at`

// Append inserts res. Re-appending an existing ID is a no-op.
func (s *SimulationStore) Append(ctx context.Context, res domain.SimulationResult) error {
	const query = `INSERT INTO simulations (` + simulationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	req := res.Request
	_, err := s.pool.Exec(ctx, query,
		res.ID, string(res.Venue), res.Instrument,
		string(req.Side), string(req.OrderType), req.LimitPrice, req.Quantity, req.Delay.Milliseconds(),
		res.FillPercent, res.AveragePrice, res.SlippageBps, res.LevelsTouched, res.Warning, res.ProducedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append simulation %s: %w", res.ID, err)
	}
	return nil
}

// ListRecent returns up to limit results, newest first.
func (s *SimulationStore) ListRecent(ctx context.Context, limit int) ([]domain.SimulationResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + simulationColumns + ` FROM simulations ORDER BY produced_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list simulations: %w", err)
	}
	defer rows.Close()

	var out []domain.SimulationResult
	for rows.Next() {
		res, err := scanSimulation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate simulations: %w", err)
	}
	return out, nil
}

// GetByID returns the result with id, or domain.ErrNotFound.
func (s *SimulationStore) GetByID(ctx context.Context, id string) (domain.SimulationResult, error) {
	query := `SELECT ` + simulationColumns + ` FROM simulations WHERE id = $1`

	res, err := scanSimulation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SimulationResult{}, domain.ErrNotFound
		}
		return domain.SimulationResult{}, err
	}
	return res, nil
}

func scanSimulation(row pgx.Row) (domain.SimulationResult, error) {
	var (
		res                    domain.SimulationResult
		venue, side, orderType string
		delayMs                int64
	)
	err := row.Scan(
		&res.ID, &venue, &res.Instrument,
		&side, &orderType, &res.Request.LimitPrice, &res.Request.Quantity, &delayMs,
		&res.FillPercent, &res.AveragePrice, &res.SlippageBps, &res.LevelsTouched, &res.Warning, &res.ProducedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SimulationResult{}, err
		}
		return domain.SimulationResult{}, fmt.Errorf("postgres: scan simulation: %w", err)
	}

	res.Venue = domain.Venue(venue)
	res.Request.Key = domain.BookKey{Venue: res.Venue, Instrument: res.Instrument}
	res.Request.Side = domain.Side(side)
	res.Request.OrderType = domain.OrderType(orderType)
	res.Request.Delay = time.Duration(delayMs) * time.Millisecond
	return res, nil
}

var _ domain.SimulationStore = (*SimulationStore)(nil)
