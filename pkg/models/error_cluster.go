package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorCluster is a group of semantically similar error beacons produced by
// one analysis run. Clusters are never mutated after creation; a new analysis
// run supersedes the whole generation instead.
type ErrorCluster struct {
	ID                uuid.UUID `db:"id"                 json:"id"`
	GenerationID      uuid.UUID `db:"generation_id"      json:"generation_id"`
	Centroid          []float32 `db:"centroid"           json:"-"`
	MemberCount       int       `db:"member_count"       json:"member_count"`
	RepresentativeSig string    `db:"representative_sig" json:"representative_sig"`
	FirstSeenAt       time.Time `db:"first_seen_at"      json:"first_seen_at"`
	LastSeenAt        time.Time `db:"last_seen_at"       json:"last_seen_at"`
	CreatedAt         time.Time `db:"created_at"         json:"created_at"`
}
