package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
)

// MetricHandler handles metric definition HTTP requests
type MetricHandler struct {
	metrics repositories.MetricRepository
}

// NewMetricHandler creates a new metric handler
func NewMetricHandler(metrics repositories.MetricRepository) *MetricHandler {
	return &MetricHandler{
		metrics: metrics,
	}
}

// CreateMetric handles POST /api/metrics
func (h *MetricHandler) CreateMetric(w http.ResponseWriter, r *http.Request) {
	var metric entities.Metric
	if err := json.NewDecoder(r.Body).Decode(&metric); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := metric.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = now
	}
	metric.UpdatedAt = now

	if err := h.metrics.Save(r.Context(), &metric); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, metric)
}

// GetMetric handles GET /api/metrics/{id}
func (h *MetricHandler) GetMetric(w http.ResponseWriter, r *http.Request) {
	metricID := r.PathValue("id")
	if metricID == "" {
		respondWithError(w, http.StatusBadRequest, "metric ID is required")
		return
	}

	metric, err := h.metrics.GetByID(r.Context(), metricID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, metric)
}
