package repositories

import (
	"context"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
)

// ExperimentRepository defines the interface for experiment persistence
type ExperimentRepository interface {
	// Save inserts or updates an experiment
	Save(ctx context.Context, experiment *entities.Experiment) error

	// GetByID retrieves an experiment by ID
	GetByID(ctx context.Context, id string) (*entities.Experiment, error)

	// ListByStatus retrieves experiments in the given lifecycle state
	ListByStatus(ctx context.Context, status entities.ExperimentStatus) ([]*entities.Experiment, error)
}
