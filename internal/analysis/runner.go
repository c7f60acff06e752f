package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/confsight/internal/cache"
	"github.com/kiranshivaraju/confsight/internal/config"
	"github.com/kiranshivaraju/confsight/internal/embedding"
	"github.com/kiranshivaraju/confsight/internal/store"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// RunParams are the per-invocation parameters of one batch analysis run.
// Zero values fall back to the configured defaults.
type RunParams struct {
	Window          time.Duration
	Epsilon         float64
	MinSamples      int
	SignificanceMin float64
	SupportMin      int
}

// Runner executes the batch pipeline: windowed read, dedup, embed, cluster,
// mine patterns, commit one atomic generation. Only one run may execute at a
// time; concurrent invocations fail fast with ErrRunInProgress.
type Runner struct {
	store    store.Store
	cache    cache.Cache
	provider embedding.Provider
	cfg      config.AnalysisConfig
}

func NewRunner(st store.Store, ca cache.Cache, provider embedding.Provider, cfg config.AnalysisConfig) *Runner {
	return &Runner{store: st, cache: ca, provider: provider, cfg: cfg}
}

// Run executes one full analysis pass and returns its audit record. A failed
// run is recorded as failed and leaves the previous generation untouched; no
// partial generation is ever visible.
func (r *Runner) Run(ctx context.Context, params RunParams) (*models.AnalysisRun, error) {
	params = r.withDefaults(params)

	acquired, err := r.cache.AcquireLock(ctx, cache.AnalysisLockKey(), r.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire analysis lock: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := r.cache.ReleaseLock(context.WithoutCancel(ctx), cache.AnalysisLockKey()); err != nil {
			slog.Warn("release analysis lock", "error", err)
		}
	}()

	run := &models.AnalysisRun{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.CreateAnalysisRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create analysis run: %w", err)
	}
	_ = r.cache.SetRunStatus(ctx, run.ID, models.RunStatusRunning, 30*time.Minute)

	clusters, patterns, processed, err := r.analyze(ctx, params)
	if err != nil {
		r.finish(ctx, run, models.RunStatusFailed, processed, 0, 0, err)
		return run, err
	}

	if len(clusters) > 0 {
		generationID := clusters[0].GenerationID
		if err := r.store.CommitGeneration(ctx, generationID, clusters, patterns); err != nil {
			err = fmt.Errorf("commit generation: %w", err)
			r.finish(ctx, run, models.RunStatusFailed, processed, 0, 0, err)
			return run, err
		}
	}

	r.finish(ctx, run, models.RunStatusCompleted, processed, len(clusters), len(patterns), nil)
	slog.Info("analysis run completed",
		"run_id", run.ID,
		"errors_processed", processed,
		"clusters_formed", len(clusters),
		"patterns_found", len(patterns),
	)
	return run, nil
}

// analyze performs the read-and-compute phase. Nothing is written to the
// cluster store until the caller commits the returned generation.
func (r *Runner) analyze(ctx context.Context, params RunParams) ([]*models.ErrorCluster, []*models.ConfigPattern, int, error) {
	now := time.Now().UTC()
	beacons, err := r.store.ListErrorBeacons(ctx, now.Add(-params.Window), now)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list error beacons: %w", err)
	}

	deduped := Dedup(beacons)
	if len(deduped) == 0 {
		return nil, nil, 0, nil
	}

	vectors, err := r.embedBeacons(ctx, deduped)
	if err != nil {
		return nil, nil, len(deduped), err
	}

	labels := DBSCAN(vectors, params.Epsilon, params.MinSamples)

	// Global baseline: one snapshot per distinct environment, computed once
	// per run.
	baseline, err := r.store.ListDistinctEnvSnapshots(ctx)
	if err != nil {
		return nil, nil, len(deduped), fmt.Errorf("list baseline environments: %w", err)
	}
	globalCounts := CollectAttributes(baseline)
	totalEnvs := len(baseline)

	patternParams := PatternParams{
		SignificanceMin: params.SignificanceMin,
		SupportMin:      params.SupportMin,
		FloorEpsilon:    r.cfg.FloorEpsilon,
		ScoreCeiling:    r.cfg.ScoreCeiling,
		MaxValueLen:     r.cfg.MaxValueLen,
	}

	generationID := uuid.New()
	var clusters []*models.ErrorCluster
	var patterns []*models.ConfigPattern

	for _, members := range clusterMembers(labels) {
		cluster, clusterPatterns, err := r.buildCluster(ctx, deduped, vectors, members, generationID, globalCounts, totalEnvs, patternParams, now)
		if err != nil {
			return nil, nil, len(deduped), err
		}
		clusters = append(clusters, cluster)
		patterns = append(patterns, clusterPatterns...)
	}

	return clusters, patterns, len(deduped), nil
}

// embedBeacons returns one vector per beacon. Each distinct error text is
// embedded exactly once per run.
func (r *Runner) embedBeacons(ctx context.Context, beacons []*models.Beacon) ([][]float32, error) {
	var texts []string
	index := make(map[string]int)
	for _, b := range beacons {
		text := b.ErrorText()
		if _, ok := index[text]; !ok {
			index[text] = len(texts)
			texts = append(texts, text)
		}
	}

	embedded, err := r.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed error signatures: %w", err)
	}

	vectors := make([][]float32, len(beacons))
	for i, b := range beacons {
		vectors[i] = embedded[index[b.ErrorText()]]
	}
	return vectors, nil
}

// clusterMembers groups point indices by cluster label, noise excluded,
// ordered by cluster id.
func clusterMembers(labels []int) [][]int {
	maxLabel := -1
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}

	members := make([][]int, maxLabel+1)
	for i, l := range labels {
		if l == Noise {
			continue
		}
		members[l] = append(members[l], i)
	}
	return members
}

func (r *Runner) buildCluster(ctx context.Context, beacons []*models.Beacon, vectors [][]float32, members []int, generationID uuid.UUID, globalCounts AttributeCounts, totalEnvs int, patternParams PatternParams, now time.Time) (*models.ErrorCluster, []*models.ConfigPattern, error) {
	memberVecs := make([][]float32, len(members))
	for i, idx := range members {
		memberVecs[i] = vectors[idx]
	}
	centroid := Centroid(memberVecs)

	// Representative: the member closest to the centroid; ties go to the
	// lexicographically smallest signature.
	repSig := ""
	bestDist := 0.0
	firstSeen := beacons[members[0]].TS
	lastSeen := beacons[members[0]].TS
	envHashes := make([]string, 0, len(members))
	seenHashes := make(map[string]bool)

	for i, idx := range members {
		b := beacons[idx]
		sig := b.ErrorText()
		dist := CosineDistance(vectors[idx], centroid)
		if i == 0 || dist < bestDist || (dist == bestDist && sig < repSig) {
			bestDist = dist
			repSig = sig
		}
		if b.TS.Before(firstSeen) {
			firstSeen = b.TS
		}
		if b.TS.After(lastSeen) {
			lastSeen = b.TS
		}
		if !seenHashes[b.EnvHash] {
			seenHashes[b.EnvHash] = true
			envHashes = append(envHashes, b.EnvHash)
		}
	}

	cluster := &models.ErrorCluster{
		ID:                uuid.New(),
		GenerationID:      generationID,
		Centroid:          centroid,
		MemberCount:       len(members),
		RepresentativeSig: repSig,
		FirstSeenAt:       firstSeen,
		LastSeenAt:        lastSeen,
		CreatedAt:         now,
	}

	memberEnvs, err := r.store.ListEnvSnapshotsByHashes(ctx, envHashes)
	if err != nil {
		return nil, nil, fmt.Errorf("list member environments: %w", err)
	}

	patterns := MinePatterns(memberEnvs, globalCounts, totalEnvs, cluster.MemberCount, patternParams)
	if err := ValidatePatterns(patterns, cluster.MemberCount, totalEnvs); err != nil {
		return nil, nil, err
	}
	stampPatterns(patterns, cluster.ID, generationID, now)

	return cluster, patterns, nil
}

func (r *Runner) finish(ctx context.Context, run *models.AnalysisRun, status string, processed, clusters, patterns int, cause error) {
	ctx = context.WithoutCancel(ctx)

	var opts []store.RunUpdateOption
	if cause != nil {
		opts = append(opts, store.WithRunError(cause.Error()))
		slog.Error("analysis run failed", "run_id", run.ID, "error", cause)
	}
	if err := r.store.FinishAnalysisRun(ctx, run.ID, status, processed, clusters, patterns, opts...); err != nil {
		slog.Error("finish analysis run", "run_id", run.ID, "error", err)
	}
	_ = r.cache.SetRunStatus(ctx, run.ID, status, 30*time.Minute)

	run.Status = status
	run.ErrorsProcessed = processed
	run.ClustersFormed = clusters
	run.PatternsFound = patterns
	finished := time.Now().UTC()
	run.FinishedAt = &finished
}

func (r *Runner) withDefaults(p RunParams) RunParams {
	if p.Window <= 0 {
		p.Window = r.cfg.Window
	}
	if p.Epsilon <= 0 {
		p.Epsilon = r.cfg.Epsilon
	}
	if p.MinSamples <= 0 {
		p.MinSamples = r.cfg.MinSamples
	}
	if p.SignificanceMin <= 0 {
		p.SignificanceMin = r.cfg.SignificanceMin
	}
	if p.SupportMin <= 0 {
		p.SupportMin = r.cfg.SupportMin
	}
	return p
}
