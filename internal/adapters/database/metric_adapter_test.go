package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var metricRowColumns = []string{
	"id", "name", "aggregation", "is_guardrail",
	"min_value", "max_value", "created_at", "updated_at",
}

func TestMetricAdapter_GetByID(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewMetricAdapter(client)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(metricRowColumns).
		AddRow("checkout_completed", "Checkout completed", "percentage", false, nil, 1.0, now, now)
	mock.ExpectQuery(`SELECT .+ FROM "metrics"`).WillReturnRows(rows)

	metric, err := adapter.GetByID(context.Background(), "checkout_completed")

	require.NoError(t, err)
	assert.Equal(t, entities.AggregationPercentage, metric.Aggregation)
	assert.Nil(t, metric.MinValue)
	require.NotNil(t, metric.MaxValue)
	assert.Equal(t, 1.0, *metric.MaxValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricAdapter_GetByID_NotFound(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewMetricAdapter(client)

	mock.ExpectQuery(`SELECT .+ FROM "metrics"`).
		WillReturnRows(sqlmock.NewRows(metricRowColumns))

	metric, err := adapter.GetByID(context.Background(), "missing")

	assert.Nil(t, metric)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricAdapter_GetByIDs_MissingIDsAbsent(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewMetricAdapter(client)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(metricRowColumns).
		AddRow("checkout_completed", "Checkout completed", "percentage", false, nil, nil, now, now)
	mock.ExpectQuery(`SELECT .+ FROM "metrics"`).WillReturnRows(rows)

	metrics, err := adapter.GetByIDs(context.Background(), []string{"checkout_completed", "missing"})

	require.NoError(t, err)
	assert.Len(t, metrics, 1)
	assert.Contains(t, metrics, "checkout_completed")
	assert.NotContains(t, metrics, "missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricAdapter_GetByIDs_Empty(t *testing.T) {
	client, _ := setupMockClient(t)
	adapter := NewMetricAdapter(client)

	metrics, err := adapter.GetByIDs(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestMetricAdapter_Save_Upserts(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewMetricAdapter(client)

	mock.ExpectExec(`INSERT INTO "metrics" .+ ON CONFLICT \("id"\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	max := 1.0
	err := adapter.Save(context.Background(), &entities.Metric{
		ID:          "checkout_completed",
		Name:        "Checkout completed",
		Aggregation: entities.AggregationPercentage,
		MaxValue:    &max,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
