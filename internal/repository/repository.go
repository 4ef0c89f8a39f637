package repository

import (
	"context"

	"circuitsync/internal/domain"
)

// ResultStore persists reconciliation results. The last result per device is
// the authoritative state; older passes are kept as history.
type ResultStore interface {
	// Write operations
	SaveResult(ctx context.Context, result *domain.ReconciliationResult) error

	// Read operations
	GetResult(ctx context.Context, id string) (*domain.ReconciliationResult, error)
	LastResult(ctx context.Context, deviceRef string) (*domain.ReconciliationResult, error)
	ListLastResults(ctx context.Context, filter ResultFilter) ([]*domain.ReconciliationResult, error)
	History(ctx context.Context, deviceRef string, limit int) ([]*domain.ReconciliationResult, error)

	// Close releases resources
	Close() error
}

// ResultFilter narrows ListLastResults; zero fields match everything
type ResultFilter struct {
	CircuitID string
	// DirtyOnly keeps results whose pass did not end clean
	DirtyOnly bool
}
