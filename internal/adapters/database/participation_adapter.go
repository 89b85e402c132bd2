package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
)

var participationColumns = []interface{}{
	"id", "experiment_id", "user_id", "variant_id",
	"assigned_at", "exposed_at", "conversions",
}

// ParticipationAdapter implements ParticipationRepository
type ParticipationAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewParticipationAdapter creates a new participation adapter
func NewParticipationAdapter(client *postgres.Client) repositories.ParticipationRepository {
	return &ParticipationAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// FindByUserAndExperiment retrieves the participation for a user in an experiment
func (a *ParticipationAdapter) FindByUserAndExperiment(ctx context.Context, userID, experimentID string) (*entities.Participation, error) {
	query, args, err := a.db.Select(participationColumns...).
		From("participations").
		Where(goqu.Ex{
			"user_id":       userID,
			"experiment_id": experimentID,
		}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	participation, err := scanParticipation(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no participation for user %s in experiment %s", userID, experimentID))
	}
	if err != nil {
		return nil, err
	}

	return participation, nil
}

// InsertIfAbsent creates the participation unless one already exists for the
// (experiment, user) pair. The unique constraint on that pair makes the
// insert a race-safe claim; when a concurrent writer got there first the
// insert affects no rows and the winning row is read back instead.
func (a *ParticipationAdapter) InsertIfAbsent(ctx context.Context, participation *entities.Participation) (*entities.Participation, bool, error) {
	conversions, err := json.Marshal(conversionsOrEmpty(participation.Conversions))
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to marshal conversions", err)
	}

	record := goqu.Record{
		"id":            participation.ID,
		"experiment_id": participation.ExperimentID,
		"user_id":       participation.UserID,
		"variant_id":    participation.VariantID,
		"assigned_at":   participation.AssignedAt,
		"exposed_at":    participation.ExposedAt,
		"conversions":   string(conversions),
	}

	query, args, err := a.db.Insert("participations").
		Rows(record).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to build insert query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to insert participation", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to get rows affected", err)
	}

	if rowsAffected > 0 {
		return participation, true, nil
	}

	existing, err := a.FindByUserAndExperiment(ctx, participation.UserID, participation.ExperimentID)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

// AppendConversion appends a conversion event to the participation's jsonb
// conversion log. The append happens in the database so concurrent
// conversions for the same participation never overwrite each other.
func (a *ParticipationAdapter) AppendConversion(ctx context.Context, participationID string, conversion entities.Conversion) error {
	event, err := json.Marshal(conversion)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal conversion", err)
	}

	query, args, err := a.db.Update("participations").
		Set(goqu.Record{
			"conversions": goqu.L("conversions || ?::jsonb", string(event)),
		}).
		Where(goqu.Ex{"id": participationID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to append conversion", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("participation with id %s not found", participationID))
	}

	return nil
}

// SetExposed records the first delivery timestamp. Rows with exposed_at
// already set are left untouched, keeping the first exposure authoritative.
func (a *ParticipationAdapter) SetExposed(ctx context.Context, participationID string, exposedAt time.Time) error {
	query, args, err := a.db.Update("participations").
		Set(goqu.Record{"exposed_at": exposedAt}).
		Where(goqu.Ex{
			"id":         participationID,
			"exposed_at": nil,
		}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	_, err = a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to set exposure timestamp", err)
	}

	return nil
}

// ListByExperiment retrieves all participations for an experiment
func (a *ParticipationAdapter) ListByExperiment(ctx context.Context, experimentID string) ([]*entities.Participation, error) {
	return a.list(ctx, goqu.Ex{"experiment_id": experimentID})
}

// ListByUser retrieves all participations for a user
func (a *ParticipationAdapter) ListByUser(ctx context.Context, userID string) ([]*entities.Participation, error) {
	return a.list(ctx, goqu.Ex{"user_id": userID})
}

func (a *ParticipationAdapter) list(ctx context.Context, where goqu.Ex) ([]*entities.Participation, error) {
	query, args, err := a.db.Select(participationColumns...).
		From("participations").
		Where(where).
		Order(goqu.I("assigned_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list participations", err)
	}
	defer rows.Close()

	var participations []*entities.Participation
	for rows.Next() {
		participation, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		participations = append(participations, participation)
	}

	if err = rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating participations", err)
	}

	return participations, nil
}

func scanParticipation(row rowScanner) (*entities.Participation, error) {
	participation := &entities.Participation{}
	var (
		exposedAt   sql.NullTime
		conversions []byte
	)

	err := row.Scan(
		&participation.ID,
		&participation.ExperimentID,
		&participation.UserID,
		&participation.VariantID,
		&participation.AssignedAt,
		&exposedAt,
		&conversions,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to scan participation", err)
	}

	if exposedAt.Valid {
		t := exposedAt.Time
		participation.ExposedAt = &t
	}
	if len(conversions) > 0 {
		if err := json.Unmarshal(conversions, &participation.Conversions); err != nil {
			return nil, apperrors.NewInternalError("failed to unmarshal conversions", err)
		}
	}

	return participation, nil
}

// conversionsOrEmpty keeps the jsonb column a valid array so in-database
// appends never operate on NULL.
func conversionsOrEmpty(conversions []entities.Conversion) []entities.Conversion {
	if conversions == nil {
		return []entities.Conversion{}
	}
	return conversions
}
