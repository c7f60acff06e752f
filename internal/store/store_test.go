package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/confsight/internal/store"
	"github.com/kiranshivaraju/confsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("confsight_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func testBeacon(envHash, sig string, ts time.Time) *models.Beacon {
	return &models.Beacon{
		ID:        uuid.New(),
		Kind:      models.BeaconKindError,
		EnvHash:   envHash,
		ScriptID:  "train.py",
		ErrorSig:  sig,
		TS:        ts,
		CreatedAt: ts,
	}
}

func testSnapshot(envHash, arch string) *models.EnvSnapshot {
	return &models.EnvSnapshot{
		ID:          uuid.New(),
		EnvHash:     envHash,
		MachineArch: arch,
		PythonVer:   "3.11.4",
		OSInfo:      "Linux-6.1",
		Packages:    map[string]string{"numpy": "1.19.0", "requests": "2.31.0"},
		EnvVars:     map[string]string{"TZ": "UTC"},
		CapturedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func testCluster(generationID uuid.UUID, memberCount int) *models.ErrorCluster {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.ErrorCluster{
		ID:                uuid.New(),
		GenerationID:      generationID,
		Centroid:          []float32{0.1, 0.2, 0.3, 0.4},
		MemberCount:       memberCount,
		RepresentativeSig: "ImportError: no module named numpy",
		FirstSeenAt:       now.Add(-time.Hour),
		LastSeenAt:        now,
		CreatedAt:         now,
	}
}

func testPattern(cluster *models.ErrorCluster, key, value string, score float64) *models.ConfigPattern {
	return &models.ConfigPattern{
		ID:                uuid.New(),
		ClusterID:         cluster.ID,
		GenerationID:      cluster.GenerationID,
		ConfigKey:         key,
		ConfigValue:       value,
		CountInCluster:    2,
		CountGlobal:       3,
		ConfidencePct:     80,
		SignificanceScore: score,
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
	}
}

// --- Beacon tests ---

func TestBeacon_CreateAndListWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	inWindow := testBeacon("env-a", "TypeError: unsupported operand", base)
	outsideWindow := testBeacon("env-a", "TypeError: unsupported operand", base.Add(-48*time.Hour))
	success := testBeacon("env-b", "", base)
	success.Kind = models.BeaconKindSuccess

	require.NoError(t, s.CreateBeacon(ctx, inWindow))
	require.NoError(t, s.CreateBeacon(ctx, outsideWindow))
	require.NoError(t, s.CreateBeacon(ctx, success))

	got, err := s.ListErrorBeacons(ctx, base.Add(-24*time.Hour), base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inWindow.ID, got[0].ID)
	assert.Equal(t, "TypeError: unsupported operand", got[0].ErrorSig)
}

func TestBeacon_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	b := testBeacon("env-a", "TypeError", time.Now().UTC())
	require.NoError(t, s.CreateBeacon(ctx, b))

	err := s.CreateBeacon(ctx, b)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestBeacon_ListOrderIsStable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateBeacon(ctx, testBeacon("env-a", "E", base.Add(time.Duration(i)*time.Second))))
	}

	first, err := s.ListErrorBeacons(ctx, base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	second, err := s.ListErrorBeacons(ctx, base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)

	require.Len(t, first, 5)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		if i > 0 {
			assert.False(t, first[i].TS.Before(first[i-1].TS))
		}
	}
}

// --- Environment snapshot tests ---

func TestEnvSnapshot_UpsertIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	created, err := s.UpsertEnvSnapshot(ctx, testSnapshot("env-a", "x86_64"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.UpsertEnvSnapshot(ctx, testSnapshot("env-a", "x86_64"))
	require.NoError(t, err)
	assert.False(t, created)

	// A different arch under the same hash is a distinct row.
	created, err = s.UpsertEnvSnapshot(ctx, testSnapshot("env-a", "arm64"))
	require.NoError(t, err)
	assert.True(t, created)

	has, err := s.HasEnvSnapshot(ctx, "env-a")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasEnvSnapshot(ctx, "env-unknown")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEnvSnapshot_GetByHashRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	snap := testSnapshot("env-a", "x86_64")
	_, err := s.UpsertEnvSnapshot(ctx, snap)
	require.NoError(t, err)

	got, err := s.GetEnvSnapshotByHash(ctx, "env-a")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, "3.11.4", got.PythonVer)
	assert.Equal(t, map[string]string{"numpy": "1.19.0", "requests": "2.31.0"}, got.Packages)
	assert.Equal(t, map[string]string{"TZ": "UTC"}, got.EnvVars)

	_, err = s.GetEnvSnapshotByHash(ctx, "env-unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnvSnapshot_ListDistinct(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	for _, args := range [][2]string{{"env-a", "x86_64"}, {"env-a", "arm64"}, {"env-b", "x86_64"}} {
		_, err := s.UpsertEnvSnapshot(ctx, testSnapshot(args[0], args[1]))
		require.NoError(t, err)
	}

	snaps, err := s.ListDistinctEnvSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	byHashes, err := s.ListEnvSnapshotsByHashes(ctx, []string{"env-a", "env-missing"})
	require.NoError(t, err)
	require.Len(t, byHashes, 1)
	assert.Equal(t, "env-a", byHashes[0].EnvHash)

	empty, err := s.ListEnvSnapshotsByHashes(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// --- Generation tests ---

func TestGeneration_CommitAndRead(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, err := s.CurrentGenerationID(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	generationID := uuid.New()
	cluster := testCluster(generationID, 3)
	patterns := []*models.ConfigPattern{
		testPattern(cluster, "packages.numpy", "1.19.0", 45),
		testPattern(cluster, "python_ver", "3.8.0", 4),
	}

	require.NoError(t, s.CommitGeneration(ctx, generationID, []*models.ErrorCluster{cluster}, patterns))

	current, err := s.CurrentGenerationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, generationID, current)

	clusters, err := s.ListClustersByGeneration(ctx, generationID)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, cluster.Centroid, clusters[0].Centroid)
	assert.Equal(t, 3, clusters[0].MemberCount)

	got, err := s.ListPatternsByClusters(ctx, []uuid.UUID{cluster.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "packages.numpy", got[0].ConfigKey)
	assert.Equal(t, "python_ver", got[1].ConfigKey)

	nClusters, nPatterns, err := s.GenerationStats(ctx, generationID)
	require.NoError(t, err)
	assert.Equal(t, 1, nClusters)
	assert.Equal(t, 2, nPatterns)
}

func TestGeneration_CommitSupersedesPrevious(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	firstGen := uuid.New()
	firstCluster := testCluster(firstGen, 2)
	require.NoError(t, s.CommitGeneration(ctx, firstGen,
		[]*models.ErrorCluster{firstCluster},
		[]*models.ConfigPattern{testPattern(firstCluster, "packages.numpy", "1.19.0", 10)}))

	secondGen := uuid.New()
	secondCluster := testCluster(secondGen, 5)
	require.NoError(t, s.CommitGeneration(ctx, secondGen,
		[]*models.ErrorCluster{secondCluster},
		[]*models.ConfigPattern{testPattern(secondCluster, "packages.scipy", "1.5.0", 8)}))

	current, err := s.CurrentGenerationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, secondGen, current)

	// The superseded generation is gone, clusters and patterns cascaded.
	old, err := s.ListClustersByGeneration(ctx, firstGen)
	require.NoError(t, err)
	assert.Empty(t, old)

	oldPatterns, err := s.ListPatternsByClusters(ctx, []uuid.UUID{firstCluster.ID})
	require.NoError(t, err)
	assert.Empty(t, oldPatterns)
}

func TestGeneration_CommitIsAtomic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	goodGen := uuid.New()
	goodCluster := testCluster(goodGen, 2)
	require.NoError(t, s.CommitGeneration(ctx, goodGen, []*models.ErrorCluster{goodCluster}, nil))

	// A cluster violating the member_count check makes the whole commit
	// roll back; the previous generation stays current.
	badGen := uuid.New()
	badCluster := testCluster(badGen, 0)
	err := s.CommitGeneration(ctx, badGen, []*models.ErrorCluster{badCluster}, nil)
	require.Error(t, err)

	current, err := s.CurrentGenerationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, goodGen, current)

	clusters, err := s.ListClustersByGeneration(ctx, goodGen)
	require.NoError(t, err)
	assert.Len(t, clusters, 1)
}

func TestTopPatterns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	generationID := uuid.New()
	cluster := testCluster(generationID, 4)
	patterns := []*models.ConfigPattern{
		testPattern(cluster, "packages.numpy", "1.19.0", 45),
		testPattern(cluster, "packages.scipy", "1.5.0", 20),
		testPattern(cluster, "python_ver", "3.8.0", 4),
	}
	require.NoError(t, s.CommitGeneration(ctx, generationID, []*models.ErrorCluster{cluster}, patterns))

	top, err := s.TopPatterns(ctx, generationID, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "packages.numpy", top[0].ConfigKey)
	assert.Equal(t, "packages.scipy", top[1].ConfigKey)
}

// --- Analysis run tests ---

func TestAnalysisRun_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	run := &models.AnalysisRun{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.CreateAnalysisRun(ctx, run))

	require.NoError(t, s.FinishAnalysisRun(ctx, run.ID, models.RunStatusCompleted, 12, 2, 3))

	runs, err := s.ListAnalysisRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 12, runs[0].ErrorsProcessed)
	assert.Equal(t, 2, runs[0].ClustersFormed)
	assert.Equal(t, 3, runs[0].PatternsFound)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Nil(t, runs[0].ErrorMessage)

	// A finished run cannot be finished again.
	err = s.FinishAnalysisRun(ctx, run.ID, models.RunStatusFailed, 0, 0, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalysisRun_FailureRecordsError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	run := &models.AnalysisRun{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAnalysisRun(ctx, run))
	require.NoError(t, s.FinishAnalysisRun(ctx, run.ID, models.RunStatusFailed, 7, 0, 0,
		store.WithRunError("embed error signatures: provider down")))

	runs, err := s.ListAnalysisRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Contains(t, *runs[0].ErrorMessage, "provider down")
}

func TestAnalysisRun_ListNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateAnalysisRun(ctx, &models.AnalysisRun{
			ID:        uuid.New(),
			Status:    models.RunStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := s.ListAnalysisRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}
