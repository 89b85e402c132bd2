package providers

import "context"

// UserAttributeSource exposes user profile attributes for targeting. A
// not-found or transient failure must be treated as "ineligible" by callers,
// never propagated into the assignment path.
type UserAttributeSource interface {
	// Get retrieves the attribute map for a user
	Get(ctx context.Context, userID string) (map[string]interface{}, error)
}

// SegmentResolver resolves which segments a user belongs to.
type SegmentResolver interface {
	// SegmentsFor retrieves the set of segment IDs the user is a member of
	SegmentsFor(ctx context.Context, userID string) (map[string]struct{}, error)
}
