package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateBeacon(ctx context.Context, beacon *models.Beacon) error
	ListErrorBeacons(ctx context.Context, since, until time.Time) ([]*models.Beacon, error)

	UpsertEnvSnapshot(ctx context.Context, snap *models.EnvSnapshot) (bool, error)
	HasEnvSnapshot(ctx context.Context, envHash string) (bool, error)
	GetEnvSnapshotByHash(ctx context.Context, envHash string) (*models.EnvSnapshot, error)
	ListDistinctEnvSnapshots(ctx context.Context) ([]*models.EnvSnapshot, error)
	ListEnvSnapshotsByHashes(ctx context.Context, hashes []string) ([]*models.EnvSnapshot, error)

	CommitGeneration(ctx context.Context, generationID uuid.UUID, clusters []*models.ErrorCluster, patterns []*models.ConfigPattern) error
	CurrentGenerationID(ctx context.Context) (uuid.UUID, error)
	ListClustersByGeneration(ctx context.Context, generationID uuid.UUID) ([]*models.ErrorCluster, error)
	ListPatternsByClusters(ctx context.Context, clusterIDs []uuid.UUID) ([]*models.ConfigPattern, error)
	TopPatterns(ctx context.Context, generationID uuid.UUID, limit int) ([]*models.ConfigPattern, error)
	GenerationStats(ctx context.Context, generationID uuid.UUID) (clusters int, patterns int, err error)

	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	FinishAnalysisRun(ctx context.Context, id uuid.UUID, status string, errorsProcessed, clustersFormed, patternsFound int, opts ...RunUpdateOption) error
	ListAnalysisRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error)
}

type runUpdateParams struct {
	ErrorMessage *string
}

type RunUpdateOption func(*runUpdateParams)

func WithRunError(msg string) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.ErrorMessage = &msg
	}
}
