// Package bucketing implements deterministic user-to-variant assignment.
//
// A user's bucket is derived from the 32-bit FNV-1a hash of
// "userID:experimentID", normalized to [0,1). The same pair always lands in
// the same bucket regardless of process restarts or call order, so
// assignment needs no in-memory state.
package bucketing

import (
	"hash/fnv"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
)

// Bucket returns the normalized hash position in [0,1) for a user within an
// experiment. Pure function of its inputs.
func Bucket(userID, experimentID string) float64 {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(userID))
	_, _ = hasher.Write([]byte{':'})
	_, _ = hasher.Write([]byte(experimentID))
	return float64(hasher.Sum32()) / float64(1<<32)
}

// Assign maps a user to a variant by walking variants in order and
// accumulating traffic weights until the cumulative boundary reaches the
// user's bucket. Zero-weight variants never match because they leave the
// boundary unchanged. If floating-point drift leaves the bucket past the
// final boundary, the designated control variant is returned.
//
// Assign never fails: malformed weights are rejected at experiment
// validation time, not here.
func Assign(userID, experimentID string, variants []entities.Variant, controlID string) string {
	bucket := Bucket(userID, experimentID)

	cumulative := 0.0
	for _, v := range variants {
		if v.Weight == 0 {
			continue
		}
		cumulative += v.Weight
		if bucket <= cumulative {
			return v.ID
		}
	}

	return controlID
}
