package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/launchpadhq/experiment-engine/internal/api/handlers"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
)

type stubExperimentService struct {
	experiments map[string]*entities.Experiment
	created     []*entities.Experiment
	stopReasons []string
}

func newStubExperimentService(experiments ...*entities.Experiment) *stubExperimentService {
	s := &stubExperimentService{experiments: map[string]*entities.Experiment{}}
	for _, e := range experiments {
		s.experiments[e.ID] = e
	}
	return s
}

func (s *stubExperimentService) CreateExperiment(ctx context.Context, experiment *entities.Experiment) (*entities.Experiment, error) {
	if experiment.Name == "" {
		return nil, apperrors.NewValidationError("experiment name is required")
	}
	if experiment.ID == "" {
		experiment.ID = "exp-created"
	}
	experiment.Status = entities.StatusDraft
	s.created = append(s.created, experiment)
	s.experiments[experiment.ID] = experiment
	return experiment, nil
}

func (s *stubExperimentService) GetExperiment(ctx context.Context, id string) (*entities.Experiment, error) {
	experiment, ok := s.experiments[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("experiment not found")
	}
	return experiment, nil
}

func (s *stubExperimentService) ListByStatus(ctx context.Context, status entities.ExperimentStatus) ([]*entities.Experiment, error) {
	var out []*entities.Experiment
	for _, e := range s.experiments {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubExperimentService) StartExperiment(ctx context.Context, id string) (*entities.Experiment, error) {
	experiment, err := s.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if experiment.Status != entities.StatusDraft && experiment.Status != entities.StatusPaused {
		return nil, apperrors.NewStateError("cannot start experiment in status " + string(experiment.Status))
	}
	experiment.Status = entities.StatusRunning
	return experiment, nil
}

func (s *stubExperimentService) PauseExperiment(ctx context.Context, id string) (*entities.Experiment, error) {
	experiment, err := s.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	experiment.Status = entities.StatusPaused
	return experiment, nil
}

func (s *stubExperimentService) StopExperiment(ctx context.Context, id, reason string) (*entities.Experiment, error) {
	experiment, err := s.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.stopReasons = append(s.stopReasons, reason)
	experiment.Status = entities.StatusCompleted
	return experiment, nil
}

func (s *stubExperimentService) CancelExperiment(ctx context.Context, id, reason string) (*entities.Experiment, error) {
	experiment, err := s.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.stopReasons = append(s.stopReasons, reason)
	experiment.Status = entities.StatusCancelled
	return experiment, nil
}

type stubResultsCalculator struct {
	results    *entities.ExperimentResults
	segments   []entities.VariantResult
	calculated []string
}

func (s *stubResultsCalculator) CalculateResults(ctx context.Context, experimentID string) (*entities.ExperimentResults, error) {
	if s.results == nil {
		return nil, apperrors.NewNotFoundError("experiment not found")
	}
	s.calculated = append(s.calculated, experimentID)
	return s.results, nil
}

func (s *stubResultsCalculator) CalculateSegmentResults(ctx context.Context, experimentID, segmentID string) ([]entities.VariantResult, error) {
	return s.segments, nil
}

func testExperiment(id string, status entities.ExperimentStatus) *entities.Experiment {
	return &entities.Experiment{
		ID:     id,
		Name:   "Checkout button color",
		Type:   entities.TypeAB,
		Status: status,
		Variants: []entities.Variant{
			{ID: "control", Name: "Control", IsControl: true, Weight: 0.5},
			{ID: "variant-b", Name: "Green button", Weight: 0.5},
		},
		ControlVariantID: "control",
		PrimaryMetricID:  "checkout_completed",
	}
}

func TestExperimentHandler_CreateExperiment(t *testing.T) {
	service := newStubExperimentService()
	handler := handlers.NewExperimentHandler(service, &stubResultsCalculator{})

	body := `{"name":"Checkout button color","type":"a_b","primary_metric_id":"checkout_completed"}`
	req := httptest.NewRequest("POST", "/api/experiments", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.CreateExperiment(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, service.created, 1)

	var response entities.Experiment
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "exp-created", response.ID)
	assert.Equal(t, entities.StatusDraft, response.Status)
}

func TestExperimentHandler_CreateExperiment_ValidationError(t *testing.T) {
	service := newStubExperimentService()
	handler := handlers.NewExperimentHandler(service, &stubResultsCalculator{})

	req := httptest.NewRequest("POST", "/api/experiments", strings.NewReader(`{"type":"ab"}`))
	w := httptest.NewRecorder()

	handler.CreateExperiment(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExperimentHandler_CreateExperiment_MalformedBody(t *testing.T) {
	handler := handlers.NewExperimentHandler(newStubExperimentService(), &stubResultsCalculator{})

	req := httptest.NewRequest("POST", "/api/experiments", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()

	handler.CreateExperiment(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExperimentHandler_GetExperiment_NotFound(t *testing.T) {
	handler := handlers.NewExperimentHandler(newStubExperimentService(), &stubResultsCalculator{})

	req := httptest.NewRequest("GET", "/api/experiments/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()

	handler.GetExperiment(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExperimentHandler_StartExperiment(t *testing.T) {
	service := newStubExperimentService(testExperiment("exp-1", entities.StatusDraft))
	handler := handlers.NewExperimentHandler(service, &stubResultsCalculator{})

	req := httptest.NewRequest("POST", "/api/experiments/exp-1/start", nil)
	req.SetPathValue("id", "exp-1")
	w := httptest.NewRecorder()

	handler.StartExperiment(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response entities.Experiment
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, entities.StatusRunning, response.Status)
}

func TestExperimentHandler_StartExperiment_InvalidTransition(t *testing.T) {
	service := newStubExperimentService(testExperiment("exp-1", entities.StatusCompleted))
	handler := handlers.NewExperimentHandler(service, &stubResultsCalculator{})

	req := httptest.NewRequest("POST", "/api/experiments/exp-1/start", nil)
	req.SetPathValue("id", "exp-1")
	w := httptest.NewRecorder()

	handler.StartExperiment(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExperimentHandler_StopExperiment_PassesReason(t *testing.T) {
	service := newStubExperimentService(testExperiment("exp-1", entities.StatusRunning))
	handler := handlers.NewExperimentHandler(service, &stubResultsCalculator{})

	body := `{"reason":"winner found early"}`
	req := httptest.NewRequest("POST", "/api/experiments/exp-1/stop", strings.NewReader(body))
	req.SetPathValue("id", "exp-1")
	w := httptest.NewRecorder()

	handler.StopExperiment(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"winner found early"}, service.stopReasons)
}

func TestExperimentHandler_StopExperiment_EmptyBodyIsAllowed(t *testing.T) {
	service := newStubExperimentService(testExperiment("exp-1", entities.StatusRunning))
	handler := handlers.NewExperimentHandler(service, &stubResultsCalculator{})

	req := httptest.NewRequest("POST", "/api/experiments/exp-1/stop", nil)
	req.SetPathValue("id", "exp-1")
	w := httptest.NewRecorder()

	handler.StopExperiment(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{""}, service.stopReasons)
}

func TestExperimentHandler_ListExperiments_DefaultsToRunning(t *testing.T) {
	service := newStubExperimentService(
		testExperiment("exp-1", entities.StatusRunning),
		testExperiment("exp-2", entities.StatusDraft),
	)
	handler := handlers.NewExperimentHandler(service, &stubResultsCalculator{})

	req := httptest.NewRequest("GET", "/api/experiments", nil)
	w := httptest.NewRecorder()

	handler.ListExperiments(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Count       int                   `json:"count"`
		Experiments []entities.Experiment `json:"experiments"`
	}
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 1, response.Count)
	assert.Equal(t, "exp-1", response.Experiments[0].ID)
}

func TestExperimentHandler_GetResults_ComputesForRunningExperiment(t *testing.T) {
	service := newStubExperimentService(testExperiment("exp-1", entities.StatusRunning))
	calculator := &stubResultsCalculator{
		results: &entities.ExperimentResults{
			ExperimentID:      "exp-1",
			Status:            entities.ResultStatusComplete,
			TotalParticipants: 2000,
			ComputedAt:        time.Now(),
		},
	}
	handler := handlers.NewExperimentHandler(service, calculator)

	req := httptest.NewRequest("GET", "/api/experiments/exp-1/results", nil)
	req.SetPathValue("id", "exp-1")
	w := httptest.NewRecorder()

	handler.GetResults(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"exp-1"}, calculator.calculated)

	var response entities.ExperimentResults
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 2000, response.TotalParticipants)
}

func TestExperimentHandler_GetResults_ServesFrozenSnapshotWhenTerminal(t *testing.T) {
	experiment := testExperiment("exp-1", entities.StatusCompleted)
	experiment.Results = &entities.ExperimentResults{
		ExperimentID:      "exp-1",
		Status:            entities.ResultStatusComplete,
		TotalParticipants: 5000,
		ComputedAt:        time.Now(),
	}
	service := newStubExperimentService(experiment)
	calculator := &stubResultsCalculator{}
	handler := handlers.NewExperimentHandler(service, calculator)

	req := httptest.NewRequest("GET", "/api/experiments/exp-1/results", nil)
	req.SetPathValue("id", "exp-1")
	w := httptest.NewRecorder()

	handler.GetResults(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, calculator.calculated)

	var response entities.ExperimentResults
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 5000, response.TotalParticipants)
}

func TestExperimentHandler_GetSegmentResults(t *testing.T) {
	service := newStubExperimentService(testExperiment("exp-1", entities.StatusRunning))
	calculator := &stubResultsCalculator{
		segments: []entities.VariantResult{
			{VariantID: "control", Participants: 120},
			{VariantID: "variant-b", Participants: 118},
		},
	}
	handler := handlers.NewExperimentHandler(service, calculator)

	req := httptest.NewRequest("GET", "/api/experiments/exp-1/results/segments/mobile", nil)
	req.SetPathValue("id", "exp-1")
	req.SetPathValue("segmentId", "mobile")
	w := httptest.NewRecorder()

	handler.GetSegmentResults(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		SegmentID string                   `json:"segment_id"`
		Variants  []entities.VariantResult `json:"variants"`
	}
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "mobile", response.SegmentID)
	assert.Len(t, response.Variants, 2)
}
