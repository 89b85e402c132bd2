package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
	"github.com/lib/pq"
)

var experimentColumns = []interface{}{
	"id", "name", "status", "type", "targeting", "variants",
	"control_variant_id", "primary_metric_id", "secondary_metric_ids",
	"guardrail_metric_ids", "settings", "required_sample_size", "results",
	"started_at", "ended_at", "created_at", "updated_at",
}

// ExperimentAdapter implements ExperimentRepository
type ExperimentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewExperimentAdapter creates a new experiment adapter
func NewExperimentAdapter(client *postgres.Client) repositories.ExperimentRepository {
	return &ExperimentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Save inserts the experiment or updates it in place when the id exists.
// Variants, targeting, settings, and the results snapshot are stored as
// jsonb documents alongside the queryable scalar columns.
func (a *ExperimentAdapter) Save(ctx context.Context, experiment *entities.Experiment) error {
	targeting, err := json.Marshal(experiment.Targeting)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal targeting rules", err)
	}
	variants, err := json.Marshal(experiment.Variants)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal variants", err)
	}
	settings, err := json.Marshal(experiment.Settings)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal settings", err)
	}

	var results interface{}
	if experiment.Results != nil {
		data, err := json.Marshal(experiment.Results)
		if err != nil {
			return apperrors.NewInternalError("failed to marshal results snapshot", err)
		}
		results = string(data)
	}

	record := goqu.Record{
		"id":                   experiment.ID,
		"name":                 experiment.Name,
		"status":               string(experiment.Status),
		"type":                 string(experiment.Type),
		"targeting":            string(targeting),
		"variants":             string(variants),
		"control_variant_id":   experiment.ControlVariantID,
		"primary_metric_id":    experiment.PrimaryMetricID,
		"secondary_metric_ids": pq.Array(experiment.SecondaryMetricIDs),
		"guardrail_metric_ids": pq.Array(experiment.GuardrailMetricIDs),
		"settings":             string(settings),
		"required_sample_size": experiment.RequiredSampleSize,
		"results":              results,
		"started_at":           experiment.StartedAt,
		"ended_at":             experiment.EndedAt,
		"created_at":           experiment.CreatedAt,
		"updated_at":           experiment.UpdatedAt,
	}

	update := goqu.Record{}
	for col, val := range record {
		if col == "id" || col == "created_at" {
			continue
		}
		update[col] = val
	}

	query, args, err := a.db.Insert("experiments").
		Rows(record).
		OnConflict(goqu.DoUpdate("id", update)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	_, err = a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to save experiment", err)
	}

	return nil
}

// GetByID retrieves an experiment by ID
func (a *ExperimentAdapter) GetByID(ctx context.Context, id string) (*entities.Experiment, error) {
	query, args, err := a.db.Select(experimentColumns...).
		From("experiments").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	experiment, err := a.scanExperiment(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("experiment with id %s not found", id))
	}
	if err != nil {
		return nil, err
	}

	return experiment, nil
}

// ListByStatus retrieves experiments in the given lifecycle state
func (a *ExperimentAdapter) ListByStatus(ctx context.Context, status entities.ExperimentStatus) ([]*entities.Experiment, error) {
	query, args, err := a.db.Select(experimentColumns...).
		From("experiments").
		Where(goqu.Ex{"status": string(status)}).
		Order(goqu.I("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list experiments", err)
	}
	defer rows.Close()

	var experiments []*entities.Experiment
	for rows.Next() {
		experiment, err := a.scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, experiment)
	}

	if err = rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating experiments", err)
	}

	return experiments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (a *ExperimentAdapter) scanExperiment(row rowScanner) (*entities.Experiment, error) {
	experiment := &entities.Experiment{}
	var (
		status, expType               string
		targeting, variants, settings []byte
		results                       []byte
		startedAt, endedAt            sql.NullTime
	)

	err := row.Scan(
		&experiment.ID,
		&experiment.Name,
		&status,
		&expType,
		&targeting,
		&variants,
		&experiment.ControlVariantID,
		&experiment.PrimaryMetricID,
		pq.Array(&experiment.SecondaryMetricIDs),
		pq.Array(&experiment.GuardrailMetricIDs),
		&settings,
		&experiment.RequiredSampleSize,
		&results,
		&startedAt,
		&endedAt,
		&experiment.CreatedAt,
		&experiment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to scan experiment", err)
	}

	experiment.Status = entities.ExperimentStatus(status)
	experiment.Type = entities.ExperimentType(expType)

	if err := json.Unmarshal(targeting, &experiment.Targeting); err != nil {
		return nil, apperrors.NewInternalError("failed to unmarshal targeting rules", err)
	}
	if err := json.Unmarshal(variants, &experiment.Variants); err != nil {
		return nil, apperrors.NewInternalError("failed to unmarshal variants", err)
	}
	if err := json.Unmarshal(settings, &experiment.Settings); err != nil {
		return nil, apperrors.NewInternalError("failed to unmarshal settings", err)
	}
	if len(results) > 0 {
		experiment.Results = &entities.ExperimentResults{}
		if err := json.Unmarshal(results, experiment.Results); err != nil {
			return nil, apperrors.NewInternalError("failed to unmarshal results snapshot", err)
		}
	}

	if startedAt.Valid {
		t := startedAt.Time
		experiment.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		experiment.EndedAt = &t
	}

	return experiment, nil
}
