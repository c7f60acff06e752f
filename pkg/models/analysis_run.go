package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// AnalysisRun is the append-only audit record for one invocation of the
// batch clustering and pattern analysis process.
type AnalysisRun struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	Status          string     `db:"status"           json:"status"`
	StartedAt       time.Time  `db:"started_at"       json:"started_at"`
	FinishedAt      *time.Time `db:"finished_at"      json:"finished_at,omitempty"`
	ErrorsProcessed int        `db:"errors_processed" json:"errors_processed"`
	ClustersFormed  int        `db:"clusters_formed"  json:"clusters_formed"`
	PatternsFound   int        `db:"patterns_found"   json:"patterns_found"`
	ErrorMessage    *string    `db:"error_message"    json:"error_message,omitempty"`
}
