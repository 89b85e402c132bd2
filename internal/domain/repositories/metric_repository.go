package repositories

import (
	"context"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
)

// MetricRepository defines the interface for metric definitions
type MetricRepository interface {
	// Save inserts or updates a metric definition
	Save(ctx context.Context, metric *entities.Metric) error

	// GetByID retrieves a metric by ID
	GetByID(ctx context.Context, id string) (*entities.Metric, error)

	// GetByIDs retrieves several metrics at once, keyed by ID. Missing IDs
	// are absent from the result rather than erroring.
	GetByIDs(ctx context.Context, ids []string) (map[string]*entities.Metric, error)
}
