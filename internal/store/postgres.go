package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// currentGenerationName is the key of the single current_generation row.
const currentGenerationName = "current"

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Beacons ---

func (s *PostgresStore) CreateBeacon(ctx context.Context, b *models.Beacon) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO beacons (id, kind, env_hash, script_id, error_sig, trace, ts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.Kind, b.EnvHash, b.ScriptID, b.ErrorSig, b.Trace, b.TS, b.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create beacon: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListErrorBeacons(ctx context.Context, since, until time.Time) ([]*models.Beacon, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, env_hash, script_id, error_sig, trace, ts, created_at
		 FROM beacons
		 WHERE kind = 'error' AND ts >= $1 AND ts < $2
		 ORDER BY ts, created_at, id`, since, until)
	if err != nil {
		return nil, fmt.Errorf("list error beacons: %w", err)
	}
	defer rows.Close()

	var beacons []*models.Beacon
	for rows.Next() {
		var b models.Beacon
		if err := rows.Scan(&b.ID, &b.Kind, &b.EnvHash, &b.ScriptID, &b.ErrorSig,
			&b.Trace, &b.TS, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan beacon: %w", err)
		}
		beacons = append(beacons, &b)
	}
	return beacons, rows.Err()
}

// --- Environment snapshots ---

func (s *PostgresStore) UpsertEnvSnapshot(ctx context.Context, snap *models.EnvSnapshot) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO env_snapshots (id, env_hash, machine_arch, python_ver, os_info, packages, env_vars, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (env_hash, machine_arch) DO NOTHING`,
		snap.ID, snap.EnvHash, snap.MachineArch, snap.PythonVer, snap.OSInfo,
		snap.Packages, snap.EnvVars, snap.CapturedAt)
	if err != nil {
		return false, fmt.Errorf("upsert env snapshot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) HasEnvSnapshot(ctx context.Context, envHash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM env_snapshots WHERE env_hash = $1)`, envHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check env snapshot: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetEnvSnapshotByHash(ctx context.Context, envHash string) (*models.EnvSnapshot, error) {
	var e models.EnvSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, env_hash, machine_arch, python_ver, os_info, packages, env_vars, captured_at
		 FROM env_snapshots WHERE env_hash = $1
		 ORDER BY captured_at DESC LIMIT 1`, envHash,
	).Scan(&e.ID, &e.EnvHash, &e.MachineArch, &e.PythonVer, &e.OSInfo,
		&e.Packages, &e.EnvVars, &e.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get env snapshot: %w", err)
	}
	return &e, nil
}

// ListDistinctEnvSnapshots returns one snapshot per env_hash (the most
// recently captured). This is the global baseline population.
func (s *PostgresStore) ListDistinctEnvSnapshots(ctx context.Context) ([]*models.EnvSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (env_hash) id, env_hash, machine_arch, python_ver, os_info, packages, env_vars, captured_at
		 FROM env_snapshots
		 ORDER BY env_hash, captured_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list env snapshots: %w", err)
	}
	defer rows.Close()
	return scanEnvSnapshots(rows)
}

func (s *PostgresStore) ListEnvSnapshotsByHashes(ctx context.Context, hashes []string) ([]*models.EnvSnapshot, error) {
	if len(hashes) == 0 {
		return []*models.EnvSnapshot{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (env_hash) id, env_hash, machine_arch, python_ver, os_info, packages, env_vars, captured_at
		 FROM env_snapshots
		 WHERE env_hash = ANY($1)
		 ORDER BY env_hash, captured_at DESC`, hashes)
	if err != nil {
		return nil, fmt.Errorf("list env snapshots by hashes: %w", err)
	}
	defer rows.Close()
	return scanEnvSnapshots(rows)
}

func scanEnvSnapshots(rows pgx.Rows) ([]*models.EnvSnapshot, error) {
	var snaps []*models.EnvSnapshot
	for rows.Next() {
		var e models.EnvSnapshot
		if err := rows.Scan(&e.ID, &e.EnvHash, &e.MachineArch, &e.PythonVer, &e.OSInfo,
			&e.Packages, &e.EnvVars, &e.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan env snapshot: %w", err)
		}
		snaps = append(snaps, &e)
	}
	return snaps, rows.Err()
}

// --- Generations, clusters, patterns ---

// CommitGeneration writes one full generation of clusters and patterns and
// swaps the current pointer in a single transaction. Rows from superseded
// generations are removed in the same transaction; readers see either the
// old generation or the new one, never a mix.
func (s *PostgresStore) CommitGeneration(ctx context.Context, generationID uuid.UUID, clusters []*models.ErrorCluster, patterns []*models.ConfigPattern) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin generation commit: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO generations (id, created_at) VALUES ($1, NOW())`, generationID); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}

	for _, c := range clusters {
		if _, err := tx.Exec(ctx,
			`INSERT INTO error_clusters (id, generation_id, centroid, member_count, representative_sig, first_seen_at, last_seen_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.GenerationID, c.Centroid, c.MemberCount, c.RepresentativeSig,
			c.FirstSeenAt, c.LastSeenAt, c.CreatedAt); err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}
	}

	for _, p := range patterns {
		if _, err := tx.Exec(ctx,
			`INSERT INTO config_patterns (id, cluster_id, generation_id, config_key, config_value, count_in_cluster, count_global, confidence_pct, significance_score, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.ClusterID, p.GenerationID, p.ConfigKey, p.ConfigValue,
			p.CountInCluster, p.CountGlobal, p.ConfidencePct, p.SignificanceScore,
			p.CreatedAt); err != nil {
			return fmt.Errorf("insert pattern: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO current_generation (name, generation_id) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET generation_id = EXCLUDED.generation_id`,
		currentGenerationName, generationID); err != nil {
		return fmt.Errorf("swap current generation: %w", err)
	}

	// Drop superseded and abandoned generations; clusters and patterns
	// cascade.
	if _, err := tx.Exec(ctx,
		`DELETE FROM generations WHERE id <> $1`, generationID); err != nil {
		return fmt.Errorf("prune old generations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit generation: %w", err)
	}
	return nil
}

func (s *PostgresStore) CurrentGenerationID(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT generation_id FROM current_generation WHERE name = $1`, currentGenerationName,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get current generation: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListClustersByGeneration(ctx context.Context, generationID uuid.UUID) ([]*models.ErrorCluster, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, generation_id, centroid, member_count, representative_sig, first_seen_at, last_seen_at, created_at
		 FROM error_clusters WHERE generation_id = $1
		 ORDER BY member_count DESC, id`, generationID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*models.ErrorCluster
	for rows.Next() {
		var c models.ErrorCluster
		if err := rows.Scan(&c.ID, &c.GenerationID, &c.Centroid, &c.MemberCount,
			&c.RepresentativeSig, &c.FirstSeenAt, &c.LastSeenAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		clusters = append(clusters, &c)
	}
	return clusters, rows.Err()
}

func (s *PostgresStore) ListPatternsByClusters(ctx context.Context, clusterIDs []uuid.UUID) ([]*models.ConfigPattern, error) {
	if len(clusterIDs) == 0 {
		return []*models.ConfigPattern{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, cluster_id, generation_id, config_key, config_value, count_in_cluster, count_global, confidence_pct, significance_score, created_at
		 FROM config_patterns WHERE cluster_id = ANY($1)
		 ORDER BY significance_score DESC, count_in_cluster DESC, config_key`, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()
	return scanPatterns(rows)
}

func (s *PostgresStore) TopPatterns(ctx context.Context, generationID uuid.UUID, limit int) ([]*models.ConfigPattern, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, cluster_id, generation_id, config_key, config_value, count_in_cluster, count_global, confidence_pct, significance_score, created_at
		 FROM config_patterns WHERE generation_id = $1
		 ORDER BY significance_score DESC, count_in_cluster DESC, config_key
		 LIMIT $2`, generationID, limit)
	if err != nil {
		return nil, fmt.Errorf("top patterns: %w", err)
	}
	defer rows.Close()
	return scanPatterns(rows)
}

func scanPatterns(rows pgx.Rows) ([]*models.ConfigPattern, error) {
	var patterns []*models.ConfigPattern
	for rows.Next() {
		var p models.ConfigPattern
		if err := rows.Scan(&p.ID, &p.ClusterID, &p.GenerationID, &p.ConfigKey, &p.ConfigValue,
			&p.CountInCluster, &p.CountGlobal, &p.ConfidencePct, &p.SignificanceScore,
			&p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

func (s *PostgresStore) GenerationStats(ctx context.Context, generationID uuid.UUID) (int, int, error) {
	var clusters, patterns int
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM error_clusters WHERE generation_id = $1),
		   (SELECT COUNT(*) FROM config_patterns WHERE generation_id = $1)`,
		generationID,
	).Scan(&clusters, &patterns)
	if err != nil {
		return 0, 0, fmt.Errorf("generation stats: %w", err)
	}
	return clusters, patterns, nil
}

// --- Analysis runs ---

func (s *PostgresStore) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, status, started_at, errors_processed, clusters_formed, patterns_found)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Status, run.StartedAt, run.ErrorsProcessed, run.ClustersFormed, run.PatternsFound)
	if err != nil {
		return fmt.Errorf("create analysis run: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishAnalysisRun(ctx context.Context, id uuid.UUID, status string, errorsProcessed, clustersFormed, patternsFound int, opts ...RunUpdateOption) error {
	params := &runUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_runs
		 SET status = $2, finished_at = NOW(), errors_processed = $3, clusters_formed = $4, patterns_found = $5, error_message = $6
		 WHERE id = $1 AND status = 'running'`,
		id, status, errorsProcessed, clustersFormed, patternsFound, params.ErrorMessage)
	if err != nil {
		return fmt.Errorf("finish analysis run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAnalysisRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, started_at, finished_at, errors_processed, clusters_formed, patterns_found, error_message
		 FROM analysis_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AnalysisRun
	for rows.Next() {
		var r models.AnalysisRun
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt,
			&r.ErrorsProcessed, &r.ClustersFormed, &r.PatternsFound, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
