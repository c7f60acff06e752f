package models

import (
	"time"

	"github.com/google/uuid"
)

// ConfigPattern records one configuration (key, value) pair that is
// over-represented inside an error cluster relative to the global
// environment population. Owned by its cluster; deleted with it when the
// generation is superseded.
type ConfigPattern struct {
	ID                uuid.UUID `db:"id"                 json:"id"`
	ClusterID         uuid.UUID `db:"cluster_id"         json:"cluster_id"`
	GenerationID      uuid.UUID `db:"generation_id"      json:"generation_id"`
	ConfigKey         string    `db:"config_key"         json:"config_key"`
	ConfigValue       string    `db:"config_value"       json:"config_value"`
	CountInCluster    int       `db:"count_in_cluster"   json:"count_in_cluster"`
	CountGlobal       int       `db:"count_global"       json:"count_global"`
	ConfidencePct     int       `db:"confidence_pct"     json:"confidence_pct"`
	SignificanceScore float64   `db:"significance_score" json:"significance_score"`
	CreatedAt         time.Time `db:"created_at"         json:"created_at"`
}
