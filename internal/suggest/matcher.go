// Package suggest matches new error signatures against the current cluster
// generation and renders ranked configuration suggestions.
package suggest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/confsight/internal/analysis"
	"github.com/kiranshivaraju/confsight/internal/cache"
	"github.com/kiranshivaraju/confsight/internal/config"
	"github.com/kiranshivaraju/confsight/internal/embedding"
	"github.com/kiranshivaraju/confsight/internal/store"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// Params are the inputs of one suggestion lookup.
type Params struct {
	ErrorSig            string `json:"error_sig"`
	EnvHash             string `json:"env_hash,omitempty"`
	UseMultipleClusters bool   `json:"use_multiple_clusters,omitempty"`
	FormatResponse      bool   `json:"format_response,omitempty"`
}

// Matcher serves suggestion lookups against the committed current generation.
// The lookup path is read-only; it never blocks on or observes an in-flight
// analysis run.
type Matcher struct {
	store    store.Store
	cache    cache.Cache
	provider embedding.Provider
	cfg      config.SuggestConfig
}

func NewMatcher(st store.Store, ca cache.Cache, provider embedding.Provider, cfg config.SuggestConfig) *Matcher {
	return &Matcher{store: st, cache: ca, provider: provider, cfg: cfg}
}

// Suggest embeds the error signature, finds the closest current-generation
// clusters within the acceptance threshold, and renders their patterns as
// ranked suggestions. No committed generation, or nothing within threshold,
// yields a clean no-match result.
func (m *Matcher) Suggest(ctx context.Context, params Params) (*models.SuggestResult, error) {
	generationID, err := m.store.CurrentGenerationID(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &models.SuggestResult{Match: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current generation: %w", err)
	}

	cacheKey := cache.SuggestionKey(generationID, hashParams(params))
	if cached, ok, err := m.cache.Get(ctx, cacheKey); err == nil && ok {
		var result models.SuggestResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	vec, err := m.provider.Embed(ctx, params.ErrorSig)
	if err != nil {
		return nil, fmt.Errorf("embed signature: %w", err)
	}

	clusters, err := m.store.ListClustersByGeneration(ctx, generationID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}

	matched := m.matchClusters(vec, clusters, params.UseMultipleClusters)
	if len(matched) == 0 {
		return &models.SuggestResult{Match: false}, nil
	}

	clusterIDs := make([]uuid.UUID, len(matched))
	for i, c := range matched {
		clusterIDs[i] = c.ID
	}
	patterns, err := m.store.ListPatternsByClusters(ctx, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}

	patterns = mergePatterns(patterns)
	patterns, err = m.filterByEnvironment(ctx, patterns, params.EnvHash)
	if err != nil {
		return nil, err
	}

	if len(patterns) > m.cfg.MaxSuggestions {
		patterns = patterns[:m.cfg.MaxSuggestions]
	}

	result := m.render(patterns, params.FormatResponse)

	if payload, err := json.Marshal(result); err == nil {
		if err := m.cache.Set(ctx, cacheKey, payload, m.cfg.CacheTTL); err != nil {
			slog.Warn("cache suggestion result", "error", err)
		}
	}
	return result, nil
}

// matchClusters returns the clusters whose centroid lies within the
// acceptance threshold of vec, closest first. Single-cluster mode uses the
// tight threshold and keeps only the closest; multi-cluster mode uses the
// wider threshold and keeps up to MaxClusters.
func (m *Matcher) matchClusters(vec []float32, clusters []*models.ErrorCluster, multi bool) []*models.ErrorCluster {
	threshold := m.cfg.MaxDistance
	limit := 1
	if multi {
		threshold = m.cfg.MultiMaxDistance
		limit = m.cfg.MaxClusters
	}

	type scored struct {
		cluster  *models.ErrorCluster
		distance float64
	}
	var within []scored
	for _, c := range clusters {
		d := analysis.CosineDistance(vec, c.Centroid)
		if d <= threshold {
			within = append(within, scored{cluster: c, distance: d})
		}
	}

	sort.SliceStable(within, func(i, j int) bool {
		return within[i].distance < within[j].distance
	})
	if len(within) > limit {
		within = within[:limit]
	}

	out := make([]*models.ErrorCluster, len(within))
	for i, s := range within {
		out[i] = s.cluster
	}
	return out
}

// mergePatterns collapses patterns gathered from multiple clusters: identical
// (key, value) pairs keep the occurrence with the higher significance; the
// same key with different values stays as separate suggestions. The merged
// set is re-ranked the same way the analyzer ranks patterns.
func mergePatterns(patterns []*models.ConfigPattern) []*models.ConfigPattern {
	best := make(map[string]*models.ConfigPattern, len(patterns))
	var order []string
	for _, p := range patterns {
		key := p.ConfigKey + "\x00" + p.ConfigValue
		cur, ok := best[key]
		if !ok {
			best[key] = p
			order = append(order, key)
			continue
		}
		if p.SignificanceScore > cur.SignificanceScore {
			best[key] = p
		}
	}

	out := make([]*models.ConfigPattern, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SignificanceScore != out[j].SignificanceScore {
			return out[i].SignificanceScore > out[j].SignificanceScore
		}
		if out[i].CountInCluster != out[j].CountInCluster {
			return out[i].CountInCluster > out[j].CountInCluster
		}
		if out[i].ConfigKey != out[j].ConfigKey {
			return out[i].ConfigKey < out[j].ConfigKey
		}
		return out[i].ConfigValue < out[j].ConfigValue
	})
	return out
}

// filterByEnvironment drops package suggestions for packages the caller does
// not have installed, when the caller's environment snapshot is known. An
// unknown hash leaves the patterns untouched.
func (m *Matcher) filterByEnvironment(ctx context.Context, patterns []*models.ConfigPattern, envHash string) ([]*models.ConfigPattern, error) {
	if envHash == "" {
		return patterns, nil
	}

	snap, err := m.store.GetEnvSnapshotByHash(ctx, envHash)
	if errors.Is(err, store.ErrNotFound) {
		return patterns, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup environment %s: %w", envHash, err)
	}

	out := patterns[:0]
	for _, p := range patterns {
		if name, ok := packageName(p.ConfigKey); ok {
			if _, installed := snap.Packages[name]; !installed {
				continue
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Matcher) render(patterns []*models.ConfigPattern, includeAll bool) *models.SuggestResult {
	if len(patterns) == 0 {
		return &models.SuggestResult{Match: false}
	}

	top := patterns[0]
	result := &models.SuggestResult{
		Match:          true,
		Confidence:     float64(top.ConfidencePct) / 100,
		Recommendation: renderSuggestion(top),
		Docs:           fmt.Sprintf("Config: %s=%s (significance: %.2f)", top.ConfigKey, top.ConfigValue, top.SignificanceScore),
	}

	if includeAll {
		result.AllSuggestions = make([]models.Suggestion, len(patterns))
		for i, p := range patterns {
			result.AllSuggestions[i] = models.Suggestion{
				Suggestion:        renderSuggestion(p),
				ConfigKey:         p.ConfigKey,
				ConfigValue:       p.ConfigValue,
				ConfidencePct:     p.ConfidencePct,
				SignificanceScore: p.SignificanceScore,
			}
		}
	}
	return result
}

// hashParams derives a stable cache key component from the request params.
func hashParams(params Params) string {
	payload, _ := json.Marshal(params)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:16])
}
