package services

import (
	"context"
	"time"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/stretchr/testify/mock"
)

type mockExperimentRepo struct {
	mock.Mock
}

func (m *mockExperimentRepo) Save(ctx context.Context, experiment *entities.Experiment) error {
	args := m.Called(ctx, experiment)
	return args.Error(0)
}

func (m *mockExperimentRepo) GetByID(ctx context.Context, id string) (*entities.Experiment, error) {
	args := m.Called(ctx, id)
	experiment, _ := args.Get(0).(*entities.Experiment)
	return experiment, args.Error(1)
}

func (m *mockExperimentRepo) ListByStatus(ctx context.Context, status entities.ExperimentStatus) ([]*entities.Experiment, error) {
	args := m.Called(ctx, status)
	experiments, _ := args.Get(0).([]*entities.Experiment)
	return experiments, args.Error(1)
}

type mockParticipationRepo struct {
	mock.Mock
}

func (m *mockParticipationRepo) FindByUserAndExperiment(ctx context.Context, userID, experimentID string) (*entities.Participation, error) {
	args := m.Called(ctx, userID, experimentID)
	participation, _ := args.Get(0).(*entities.Participation)
	return participation, args.Error(1)
}

func (m *mockParticipationRepo) InsertIfAbsent(ctx context.Context, participation *entities.Participation) (*entities.Participation, bool, error) {
	args := m.Called(ctx, participation)
	existing, _ := args.Get(0).(*entities.Participation)
	return existing, args.Bool(1), args.Error(2)
}

func (m *mockParticipationRepo) AppendConversion(ctx context.Context, participationID string, conversion entities.Conversion) error {
	args := m.Called(ctx, participationID, conversion)
	return args.Error(0)
}

func (m *mockParticipationRepo) SetExposed(ctx context.Context, participationID string, exposedAt time.Time) error {
	args := m.Called(ctx, participationID, exposedAt)
	return args.Error(0)
}

func (m *mockParticipationRepo) ListByExperiment(ctx context.Context, experimentID string) ([]*entities.Participation, error) {
	args := m.Called(ctx, experimentID)
	participations, _ := args.Get(0).([]*entities.Participation)
	return participations, args.Error(1)
}

func (m *mockParticipationRepo) ListByUser(ctx context.Context, userID string) ([]*entities.Participation, error) {
	args := m.Called(ctx, userID)
	participations, _ := args.Get(0).([]*entities.Participation)
	return participations, args.Error(1)
}

type mockMetricRepo struct {
	mock.Mock
}

func (m *mockMetricRepo) Save(ctx context.Context, metric *entities.Metric) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

func (m *mockMetricRepo) GetByID(ctx context.Context, id string) (*entities.Metric, error) {
	args := m.Called(ctx, id)
	metric, _ := args.Get(0).(*entities.Metric)
	return metric, args.Error(1)
}

func (m *mockMetricRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*entities.Metric, error) {
	args := m.Called(ctx, ids)
	metrics, _ := args.Get(0).(map[string]*entities.Metric)
	return metrics, args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) Publish(ctx context.Context, channel string, event *entities.ExperimentEvent) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

func (m *mockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.ExperimentEvent, error) {
	args := m.Called(ctx, channel)
	ch, _ := args.Get(0).(<-chan *entities.ExperimentEvent)
	return ch, args.Error(1)
}

func (m *mockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	args := m.Called(ctx, channel)
	return args.Error(0)
}

func (m *mockEventBus) Close() error {
	args := m.Called()
	return args.Error(0)
}

type stubEvaluator struct {
	eligible bool
}

func (s *stubEvaluator) IsEligible(ctx context.Context, userID string, experiment *entities.Experiment) bool {
	return s.eligible
}

// metricsFor returns a metric map covering all the given ids, for wiring
// mockMetricRepo.GetByIDs.
func metricsFor(ids ...string) map[string]*entities.Metric {
	out := make(map[string]*entities.Metric, len(ids))
	for _, id := range ids {
		out[id] = &entities.Metric{ID: id, Aggregation: entities.AggregationPercentage}
	}
	return out
}
