package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/launchpadhq/experiment-engine/internal/application/services"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/observability"
)

// AssignmentService defines the assignment and tracking operations used by
// the handler.
type AssignmentService interface {
	AssignUserToExperiment(ctx context.Context, userID, experimentID string) (*entities.Variant, error)
	GetUserVariant(ctx context.Context, userID, experimentID string) (*entities.Variant, error)
	TrackExposure(ctx context.Context, userID, experimentID string, eventContext map[string]interface{}) error
	TrackConversion(ctx context.Context, userID, experimentID, metricID string, value float64, eventContext map[string]interface{}) error
	GetActiveExperimentsForUser(ctx context.Context, userID string) ([]services.ExperimentAssignment, error)
}

// AssignmentHandler handles assignment and event tracking HTTP requests
type AssignmentHandler struct {
	assignments AssignmentService
	metrics     *observability.Metrics
}

// NewAssignmentHandler creates a new assignment handler. metrics may be nil.
func NewAssignmentHandler(assignments AssignmentService, metrics *observability.Metrics) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		metrics:     metrics,
	}
}

type assignmentRequest struct {
	UserID string `json:"user_id"`
}

// AssignUser handles POST /api/experiments/{id}/assignments
func (h *AssignmentHandler) AssignUser(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("id")
	if experimentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	var payload assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	variant, err := h.assignments.AssignUserToExperiment(r.Context(), payload.UserID, experimentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	observability.RecordAssignment(r.Context(), h.metrics, experimentID, variant != nil)

	if variant == nil {
		// Not eligible, not sampled, or the experiment is not running.
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"assigned": false,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"assigned": true,
		"variant":  variant,
	})
}

// GetVariant handles GET /api/experiments/{id}/variant?user_id=
func (h *AssignmentHandler) GetVariant(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("id")
	userID := r.URL.Query().Get("user_id")
	if experimentID == "" || userID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID and user_id are required")
		return
	}

	variant, err := h.assignments.GetUserVariant(r.Context(), userID, experimentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if variant == nil {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"assigned": false,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"assigned": true,
		"variant":  variant,
	})
}

type exposureRequest struct {
	UserID  string                 `json:"user_id"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// TrackExposure handles POST /api/experiments/{id}/exposures
func (h *AssignmentHandler) TrackExposure(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("id")
	if experimentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	var payload exposureRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.assignments.TrackExposure(r.Context(), payload.UserID, experimentID, payload.Context); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"status": "recorded",
	})
}

type conversionRequest struct {
	UserID   string                 `json:"user_id"`
	MetricID string                 `json:"metric_id"`
	Value    *float64               `json:"value"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// TrackConversion handles POST /api/experiments/{id}/conversions
func (h *AssignmentHandler) TrackConversion(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("id")
	if experimentID == "" {
		respondWithError(w, http.StatusBadRequest, "experiment ID is required")
		return
	}

	var payload conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if payload.MetricID == "" {
		respondWithError(w, http.StatusBadRequest, "metric_id is required")
		return
	}

	// Boolean conversions omit the value; an explicit zero is kept as zero.
	value := 1.0
	if payload.Value != nil {
		value = *payload.Value
	}

	err := h.assignments.TrackConversion(r.Context(), payload.UserID, experimentID, payload.MetricID, value, payload.Context)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	observability.RecordConversion(r.Context(), h.metrics, experimentID, payload.MetricID)

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"status": "recorded",
	})
}

// GetUserExperiments handles GET /api/users/{userId}/experiments
func (h *AssignmentHandler) GetUserExperiments(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user ID is required")
		return
	}

	assignments, err := h.assignments.GetActiveExperimentsForUser(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"experiments": assignments,
		"count":       len(assignments),
	})
}
