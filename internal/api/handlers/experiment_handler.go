package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
)

// ExperimentService defines the lifecycle operations used by the handler.
type ExperimentService interface {
	CreateExperiment(ctx context.Context, experiment *entities.Experiment) (*entities.Experiment, error)
	StartExperiment(ctx context.Context, id string) (*entities.Experiment, error)
	PauseExperiment(ctx context.Context, id string) (*entities.Experiment, error)
	StopExperiment(ctx context.Context, id, reason string) (*entities.Experiment, error)
	CancelExperiment(ctx context.Context, id, reason string) (*entities.Experiment, error)
	GetExperiment(ctx context.Context, id string) (*entities.Experiment, error)
	ListByStatus(ctx context.Context, status entities.ExperimentStatus) ([]*entities.Experiment, error)
}

// ResultsCalculator defines the analysis operations used by the handler.
type ResultsCalculator interface {
	CalculateResults(ctx context.Context, experimentID string) (*entities.ExperimentResults, error)
	CalculateSegmentResults(ctx context.Context, experimentID, segmentID string) ([]entities.VariantResult, error)
}

// ExperimentHandler handles experiment management HTTP requests
type ExperimentHandler struct {
	experiments ExperimentService
	results     ResultsCalculator
}

// NewExperimentHandler creates a new experiment handler
func NewExperimentHandler(experiments ExperimentService, results ResultsCalculator) *ExperimentHandler {
	return &ExperimentHandler{
		experiments: experiments,
		results:     results,
	}
}

// CreateExperiment handles POST /api/experiments
func (h *ExperimentHandler) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var experiment entities.Experiment
	if err := json.NewDecoder(r.Body).Decode(&experiment); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	created, err := h.experiments.CreateExperiment(r.Context(), &experiment)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// GetExperiment handles GET /api/experiments/{id}
func (h *ExperimentHandler) GetExperiment(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("id")
	if experimentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	experiment, err := h.experiments.GetExperiment(r.Context(), experimentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, experiment)
}

// ListExperiments handles GET /api/experiments?status=running
func (h *ExperimentHandler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	status := entities.ExperimentStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = entities.StatusRunning
	}

	experiments, err := h.experiments.ListByStatus(r.Context(), status)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"experiments": experiments,
		"count":       len(experiments),
	})
}

// StartExperiment handles POST /api/experiments/{id}/start
func (h *ExperimentHandler) StartExperiment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.experiments.StartExperiment)
}

// PauseExperiment handles POST /api/experiments/{id}/pause
func (h *ExperimentHandler) PauseExperiment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.experiments.PauseExperiment)
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

// StopExperiment handles POST /api/experiments/{id}/stop
func (h *ExperimentHandler) StopExperiment(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.experiments.StopExperiment)
}

// CancelExperiment handles POST /api/experiments/{id}/cancel
func (h *ExperimentHandler) CancelExperiment(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.experiments.CancelExperiment)
}

func (h *ExperimentHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*entities.Experiment, error)) {
	experimentID := r.PathValue("id")
	if experimentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	experiment, err := op(r.Context(), experimentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, experiment)
}

func (h *ExperimentHandler) terminate(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*entities.Experiment, error)) {
	experimentID := r.PathValue("id")
	if experimentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	var payload terminateRequest
	if r.Body != nil {
		// Reason is optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	experiment, err := op(r.Context(), experimentID, payload.Reason)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, experiment)
}

// GetResults handles GET /api/experiments/{id}/results. Completed and
// cancelled experiments return the snapshot frozen at stop time; everything
// else is computed on demand.
func (h *ExperimentHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("id")
	if experimentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	experiment, err := h.experiments.GetExperiment(r.Context(), experimentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if experiment.IsTerminal() && experiment.Results != nil {
		respondWithJSON(w, http.StatusOK, experiment.Results)
		return
	}

	results, err := h.results.CalculateResults(r.Context(), experimentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, results)
}

// GetSegmentResults handles GET /api/experiments/{id}/results/segments/{segmentId}
func (h *ExperimentHandler) GetSegmentResults(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("id")
	segmentID := r.PathValue("segmentId")
	if experimentID == "" || segmentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID and segment ID are required")
		return
	}

	variants, err := h.results.CalculateSegmentResults(r.Context(), experimentID, segmentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"segment_id": segmentID,
		"variants":   variants,
	})
}
