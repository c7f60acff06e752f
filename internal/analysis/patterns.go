package analysis

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// Configuration attribute keys. Package and environment variable attributes
// are namespaced with a dotted prefix, e.g. "packages.numpy".
const (
	KeyPythonVer   = "python_ver"
	KeyMachineArch = "machine_arch"
	KeyOSInfo      = "os_info"
	PkgKeyPrefix   = "packages."
	EnvVarPrefix   = "env_vars."
)

const truncationMarker = "..."

// AttributeCounts maps config_key -> config_value -> number of distinct
// environments exhibiting that exact pair.
type AttributeCounts map[string]map[string]int

// PatternParams are the thresholds and limits for pattern mining.
type PatternParams struct {
	// SignificanceMin is the minimum lift ratio for a pattern to be retained.
	SignificanceMin float64
	// SupportMin is the count_in_cluster a pattern must exceed, so a
	// single-environment fluke can never be retained.
	SupportMin int
	// FloorEpsilon floors the global rate so values never seen globally do
	// not divide by zero.
	FloorEpsilon float64
	// ScoreCeiling caps the lift ratio so sparse global denominators cannot
	// produce unbounded scores.
	ScoreCeiling float64
	// MaxValueLen truncates stored config values, with a marker.
	MaxValueLen int
}

// flattenAttributes converts one snapshot into its flat (key, value) pairs.
func flattenAttributes(env *models.EnvSnapshot) map[string]string {
	attrs := make(map[string]string, 3+len(env.Packages)+len(env.EnvVars))
	attrs[KeyPythonVer] = env.PythonVer
	attrs[KeyMachineArch] = env.MachineArch
	attrs[KeyOSInfo] = env.OSInfo
	for name, version := range env.Packages {
		attrs[PkgKeyPrefix+name] = version
	}
	for name, value := range env.EnvVars {
		attrs[EnvVarPrefix+name] = value
	}
	return attrs
}

// CollectAttributes counts, per (key, value), how many of the given
// environments exhibit it. Callers pass one snapshot per distinct
// environment.
func CollectAttributes(envs []*models.EnvSnapshot) AttributeCounts {
	counts := make(AttributeCounts)
	for _, env := range envs {
		for key, value := range flattenAttributes(env) {
			if counts[key] == nil {
				counts[key] = make(map[string]int)
			}
			counts[key][value]++
		}
	}
	return counts
}

// MinePatterns compares the attribute distribution of a cluster's member
// environments against the global baseline and returns the patterns whose
// lift and support clear the configured thresholds, ranked by significance
// descending (ties: count_in_cluster descending, then key ascending).
//
// memberCount is the cluster's member count (number of deduplicated error
// beacons), the denominator of confidence_pct.
func MinePatterns(memberEnvs []*models.EnvSnapshot, global AttributeCounts, totalEnvs, memberCount int, params PatternParams) []*models.ConfigPattern {
	if memberCount == 0 || totalEnvs == 0 {
		return []*models.ConfigPattern{}
	}

	clusterCounts := CollectAttributes(memberEnvs)

	var patterns []*models.ConfigPattern
	for key, values := range clusterCounts {
		for value, countIn := range values {
			if countIn <= params.SupportMin {
				continue
			}

			countGlobal := global[key][value]
			clusterRate := float64(countIn) / float64(memberCount)
			globalRate := float64(countGlobal) / float64(totalEnvs)
			if globalRate < params.FloorEpsilon {
				globalRate = params.FloorEpsilon
			}

			score := clusterRate / globalRate
			if params.ScoreCeiling > 0 && score > params.ScoreCeiling {
				score = params.ScoreCeiling
			}
			if score <= params.SignificanceMin {
				continue
			}

			patterns = append(patterns, &models.ConfigPattern{
				ConfigKey:         key,
				ConfigValue:       truncateValue(value, params.MaxValueLen),
				CountInCluster:    countIn,
				CountGlobal:       countGlobal,
				ConfidencePct:     int(clusterRate*100 + 0.5),
				SignificanceScore: score,
			})
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].SignificanceScore != patterns[j].SignificanceScore {
			return patterns[i].SignificanceScore > patterns[j].SignificanceScore
		}
		if patterns[i].CountInCluster != patterns[j].CountInCluster {
			return patterns[i].CountInCluster > patterns[j].CountInCluster
		}
		if patterns[i].ConfigKey != patterns[j].ConfigKey {
			return patterns[i].ConfigKey < patterns[j].ConfigKey
		}
		return patterns[i].ConfigValue < patterns[j].ConfigValue
	})

	return patterns
}

// ValidatePatterns enforces the pattern bound invariants before a generation
// may commit. A violation is fatal to the run, never silently clamped.
func ValidatePatterns(patterns []*models.ConfigPattern, memberCount, totalEnvs int) error {
	for _, p := range patterns {
		if p.CountInCluster < 0 || p.CountInCluster > memberCount {
			return ErrInvariantViolation
		}
		if p.CountGlobal < 0 || p.CountGlobal > totalEnvs {
			return ErrInvariantViolation
		}
		if p.ConfidencePct < 0 || p.ConfidencePct > 100 {
			return ErrInvariantViolation
		}
	}
	return nil
}

// stampPatterns fills ownership and bookkeeping fields on mined patterns.
func stampPatterns(patterns []*models.ConfigPattern, clusterID, generationID uuid.UUID, now time.Time) {
	for _, p := range patterns {
		p.ID = uuid.New()
		p.ClusterID = clusterID
		p.GenerationID = generationID
		p.CreatedAt = now
	}
}

// truncateValue truncates v to maxBytes without splitting UTF-8 runes,
// appending a marker when truncation occurred.
func truncateValue(v string, maxBytes int) string {
	if maxBytes <= 0 || len(v) <= maxBytes {
		return v
	}
	cut := maxBytes - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut] + truncationMarker
}
