package repositories

import (
	"context"
	"time"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
)

// ParticipationRepository defines the interface for participation persistence
type ParticipationRepository interface {
	// FindByUserAndExperiment retrieves the participation for a user in an
	// experiment, or a not-found error
	FindByUserAndExperiment(ctx context.Context, userID, experimentID string) (*entities.Participation, error)

	// InsertIfAbsent atomically creates the participation unless one already
	// exists for the (experiment, user) pair. When a concurrent writer wins
	// the race it returns the existing row and created=false.
	InsertIfAbsent(ctx context.Context, participation *entities.Participation) (existing *entities.Participation, created bool, err error)

	// AppendConversion appends a conversion event to a participation
	AppendConversion(ctx context.Context, participationID string, conversion entities.Conversion) error

	// SetExposed records the first delivery timestamp. A no-op if already set.
	SetExposed(ctx context.Context, participationID string, exposedAt time.Time) error

	// ListByExperiment retrieves all participations for an experiment
	ListByExperiment(ctx context.Context, experimentID string) ([]*entities.Participation, error)

	// ListByUser retrieves all participations for a user
	ListByUser(ctx context.Context, userID string) ([]*entities.Participation, error)
}
