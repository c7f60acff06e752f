package analysis

import "github.com/kiranshivaraju/confsight/pkg/models"

// Dedup collapses repeated identical errors from the same environment: for
// each (env_hash, error text) pair at most one beacon survives, so a single
// flaky environment cannot dominate a cluster or inflate pattern counts.
// The earliest beacon wins; survivor order follows first occurrence.
// Returns an empty slice for empty input (never nil). Idempotent.
func Dedup(beacons []*models.Beacon) []*models.Beacon {
	out := make([]*models.Beacon, 0, len(beacons))
	seen := make(map[string]int, len(beacons))

	for _, b := range beacons {
		key := b.EnvHash + "\x00" + b.ErrorText()
		idx, exists := seen[key]
		if !exists {
			seen[key] = len(out)
			out = append(out, b)
			continue
		}
		if b.TS.Before(out[idx].TS) {
			out[idx] = b
		}
	}
	return out
}
