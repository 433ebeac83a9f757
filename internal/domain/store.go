package domain

import "context"

// SimulationStore keeps recent simulation results, newest first.
type SimulationStore interface {
	Append(ctx context.Context, res SimulationResult) error
	ListRecent(ctx context.Context, limit int) ([]SimulationResult, error)
	GetByID(ctx context.Context, id string) (SimulationResult, error)
}
