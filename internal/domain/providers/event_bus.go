package providers

import (
	"context"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to
// experiment lifecycle events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.ExperimentEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.ExperimentEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event types
const (
	// EventChannelLifecycle carries all experiment lifecycle transitions
	EventChannelLifecycle = "experiment:lifecycle"

	// EventChannelExperimentPrefix is the prefix for per-experiment channels
	EventChannelExperimentPrefix = "experiment:"
)

// GetExperimentChannel returns the channel name for a specific experiment
func GetExperimentChannel(experimentID string) string {
	return EventChannelExperimentPrefix + experimentID
}
