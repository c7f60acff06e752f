package models

import (
	"time"

	"github.com/google/uuid"
)

// EnvSnapshot captures the configuration of one reporting environment:
// interpreter version, OS, architecture, installed packages and the
// environment variables that survived boundary redaction.
// Snapshots are immutable; beacons reference them by EnvHash.
type EnvSnapshot struct {
	ID          uuid.UUID         `db:"id"           json:"id"`
	EnvHash     string            `db:"env_hash"     json:"env_hash"`
	MachineArch string            `db:"machine_arch" json:"machine_arch"`
	PythonVer   string            `db:"python_ver"   json:"python_ver"`
	OSInfo      string            `db:"os_info"      json:"os_info"`
	Packages    map[string]string `db:"packages"     json:"packages"`
	EnvVars     map[string]string `db:"env_vars"     json:"env_vars,omitempty"`
	CapturedAt  time.Time         `db:"captured_at"  json:"captured_at"`
}
