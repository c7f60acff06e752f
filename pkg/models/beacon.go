// Package models contains shared data models used across the ConfSight codebase.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BeaconKindError   = "error"
	BeaconKindSuccess = "success"
)

// Beacon is a single telemetry report emitted by a remote script run.
// Beacons are immutable once ingested.
type Beacon struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Kind      string    `db:"kind"       json:"kind"`
	EnvHash   string    `db:"env_hash"   json:"env_hash"`
	ScriptID  string    `db:"script_id"  json:"script_id"`
	ErrorSig  string    `db:"error_sig"  json:"error_sig,omitempty"`
	Trace     string    `db:"trace"      json:"trace,omitempty"`
	TS        time.Time `db:"ts"         json:"ts"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ErrorText returns the text used as the clustering unit for an error beacon:
// the signature when present, otherwise the raw trace.
func (b *Beacon) ErrorText() string {
	if s := strings.TrimSpace(b.ErrorSig); s != "" {
		return s
	}
	return strings.TrimSpace(b.Trace)
}
