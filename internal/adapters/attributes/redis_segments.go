package attributes

import (
	"context"
	"fmt"

	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
	redisclient "github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/redis"
)

// segmentsKey holds the set of segment ids a user belongs to. Segment
// membership is maintained by an upstream pipeline; this adapter only reads.
func segmentsKey(userID string) string {
	return fmt.Sprintf("segments:user:%s", userID)
}

// RedisSegments implements SegmentResolver over per-user Redis sets.
type RedisSegments struct {
	client *redisclient.Client
}

// NewRedisSegments creates a new Redis-backed segment resolver
func NewRedisSegments(client *redisclient.Client) providers.SegmentResolver {
	return &RedisSegments{client: client}
}

// SegmentsFor retrieves the set of segment IDs the user is a member of.
// A user with no recorded segments gets an empty set, not an error.
func (r *RedisSegments) SegmentsFor(ctx context.Context, userID string) (map[string]struct{}, error) {
	members, err := r.client.Client().SMembers(ctx, segmentsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve segments for user %s: %w", userID, err)
	}

	segments := make(map[string]struct{}, len(members))
	for _, m := range members {
		segments[m] = struct{}{}
	}

	return segments, nil
}
