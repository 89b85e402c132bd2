package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
)

var metricColumns = []interface{}{
	"id", "name", "aggregation", "is_guardrail",
	"min_value", "max_value", "created_at", "updated_at",
}

// MetricAdapter implements MetricRepository
type MetricAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewMetricAdapter creates a new metric adapter
func NewMetricAdapter(client *postgres.Client) repositories.MetricRepository {
	return &MetricAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Save inserts or updates a metric definition
func (a *MetricAdapter) Save(ctx context.Context, metric *entities.Metric) error {
	record := goqu.Record{
		"id":           metric.ID,
		"name":         metric.Name,
		"aggregation":  string(metric.Aggregation),
		"is_guardrail": metric.IsGuardrail,
		"min_value":    metric.MinValue,
		"max_value":    metric.MaxValue,
		"created_at":   metric.CreatedAt,
		"updated_at":   metric.UpdatedAt,
	}

	update := goqu.Record{}
	for col, val := range record {
		if col == "id" || col == "created_at" {
			continue
		}
		update[col] = val
	}

	query, args, err := a.db.Insert("metrics").
		Rows(record).
		OnConflict(goqu.DoUpdate("id", update)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	_, err = a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to save metric", err)
	}

	return nil
}

// GetByID retrieves a metric by ID
func (a *MetricAdapter) GetByID(ctx context.Context, id string) (*entities.Metric, error) {
	query, args, err := a.db.Select(metricColumns...).
		From("metrics").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	metric, err := scanMetric(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("metric with id %s not found", id))
	}
	if err != nil {
		return nil, err
	}

	return metric, nil
}

// GetByIDs retrieves several metrics at once, keyed by ID. Missing IDs are
// absent from the returned map.
func (a *MetricAdapter) GetByIDs(ctx context.Context, ids []string) (map[string]*entities.Metric, error) {
	metrics := make(map[string]*entities.Metric, len(ids))
	if len(ids) == 0 {
		return metrics, nil
	}

	query, args, err := a.db.Select(metricColumns...).
		From("metrics").
		Where(goqu.Ex{"id": ids}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get metrics by ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics[metric.ID] = metric
	}

	if err = rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating metrics", err)
	}

	return metrics, nil
}

func scanMetric(row rowScanner) (*entities.Metric, error) {
	metric := &entities.Metric{}
	var (
		aggregation        string
		minValue, maxValue sql.NullFloat64
	)

	err := row.Scan(
		&metric.ID,
		&metric.Name,
		&aggregation,
		&metric.IsGuardrail,
		&minValue,
		&maxValue,
		&metric.CreatedAt,
		&metric.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to scan metric", err)
	}

	metric.Aggregation = entities.AggregationMethod(aggregation)
	if minValue.Valid {
		v := minValue.Float64
		metric.MinValue = &v
	}
	if maxValue.Valid {
		v := maxValue.Float64
		metric.MaxValue = &v
	}

	return metric, nil
}
