// Package ingest validates and persists incoming telemetry: error/success
// beacons and environment snapshots.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/confsight/internal/store"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// ErrInvalidBeacon and ErrInvalidSnapshot mark boundary validation failures.
var (
	ErrInvalidBeacon   = errors.New("invalid beacon")
	ErrInvalidSnapshot = errors.New("invalid environment snapshot")
)

// envVarDenylist are case-insensitive name substrings whose environment
// variables are dropped at the ingestion boundary. Redaction happens before
// persistence; denylisted values never reach the database.
var envVarDenylist = []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "CREDENTIAL", "AUTH"}

// Service handles telemetry intake.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// StoreBeacon validates and persists one beacon. needEnv reports whether no
// environment snapshot is stored yet for the beacon's env hash, so the
// client knows to follow up with one.
func (s *Service) StoreBeacon(ctx context.Context, beacon *models.Beacon) (needEnv bool, err error) {
	if err := validateBeacon(beacon); err != nil {
		return false, err
	}

	if beacon.ID == uuid.Nil {
		beacon.ID = uuid.New()
	}
	if beacon.TS.IsZero() {
		beacon.TS = time.Now().UTC()
	}

	if err := s.store.CreateBeacon(ctx, beacon); err != nil {
		return false, fmt.Errorf("store beacon: %w", err)
	}

	if beacon.EnvHash == "" {
		return false, nil
	}
	has, err := s.store.HasEnvSnapshot(ctx, beacon.EnvHash)
	if err != nil {
		return false, fmt.Errorf("check environment snapshot: %w", err)
	}
	return !has, nil
}

// StoreEnvSnapshot redacts denylisted environment variables and persists the
// snapshot. Repeated submissions for the same (env_hash, machine_arch) are
// idempotent; stored reports whether a new row was created.
func (s *Service) StoreEnvSnapshot(ctx context.Context, snap *models.EnvSnapshot) (stored bool, err error) {
	if err := validateSnapshot(snap); err != nil {
		return false, err
	}

	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	snap.EnvVars = RedactEnvVars(snap.EnvVars)

	created, err := s.store.UpsertEnvSnapshot(ctx, snap)
	if err != nil {
		return false, fmt.Errorf("store environment snapshot: %w", err)
	}
	return created, nil
}

func validateBeacon(b *models.Beacon) error {
	if b == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidBeacon)
	}
	if b.Kind != models.BeaconKindError && b.Kind != models.BeaconKindSuccess {
		return fmt.Errorf("%w: kind must be %q or %q", ErrInvalidBeacon, models.BeaconKindError, models.BeaconKindSuccess)
	}
	if b.EnvHash == "" {
		return fmt.Errorf("%w: env_hash is required", ErrInvalidBeacon)
	}
	if b.Kind == models.BeaconKindError && b.ErrorText() == "" {
		return fmt.Errorf("%w: error beacons need error_sig or trace", ErrInvalidBeacon)
	}
	return nil
}

func validateSnapshot(snap *models.EnvSnapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidSnapshot)
	}
	if snap.EnvHash == "" {
		return fmt.Errorf("%w: env_hash is required", ErrInvalidSnapshot)
	}
	if snap.MachineArch == "" {
		return fmt.Errorf("%w: machine_arch is required", ErrInvalidSnapshot)
	}
	if snap.PythonVer == "" {
		return fmt.Errorf("%w: python_ver is required", ErrInvalidSnapshot)
	}
	return nil
}

// RedactEnvVars returns a copy of vars without any entry whose name contains
// a denylisted substring, case-insensitively. Nil input stays nil.
func RedactEnvVars(vars map[string]string) map[string]string {
	if vars == nil {
		return nil
	}
	out := make(map[string]string, len(vars))
	for name, value := range vars {
		if isDenylisted(name) {
			continue
		}
		out[name] = value
	}
	return out
}

func isDenylisted(name string) bool {
	upper := strings.ToUpper(name)
	for _, needle := range envVarDenylist {
		if strings.Contains(upper, needle) {
			return true
		}
	}
	return false
}
