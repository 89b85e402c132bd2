package entities

import "time"

// ExperimentEventType identifies what happened to an experiment.
type ExperimentEventType string

const (
	EventExperimentStarted   ExperimentEventType = "experiment.started"
	EventExperimentPaused    ExperimentEventType = "experiment.paused"
	EventExperimentCompleted ExperimentEventType = "experiment.completed"
	EventExperimentCancelled ExperimentEventType = "experiment.cancelled"
)

// ExperimentEvent is published on lifecycle transitions so external
// collaborators (delivery, dashboard) can react without polling.
type ExperimentEvent struct {
	ID           string              `json:"id"`
	ExperimentID string              `json:"experiment_id"`
	Type         ExperimentEventType `json:"type"`
	Status       ExperimentStatus    `json:"status"`
	OccurredAt   time.Time           `json:"occurred_at"`
}
