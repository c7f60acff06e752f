package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/confsight/internal/api/response"
	"github.com/kiranshivaraju/confsight/internal/ingest"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// SnapshotIngestor defines the intake interface the env handler depends on.
type SnapshotIngestor interface {
	StoreEnvSnapshot(ctx context.Context, snap *models.EnvSnapshot) (stored bool, err error)
}

// NewEnvHandler returns an http.HandlerFunc for POST /api/v1/envs.
func NewEnvHandler(svc SnapshotIngestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EnvHash     string            `json:"env_hash"`
			MachineArch string            `json:"machine_arch"`
			PythonVer   string            `json:"python_ver"`
			OSInfo      string            `json:"os_info"`
			Packages    map[string]string `json:"packages"`
			EnvVars     map[string]string `json:"env_vars"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		stored, err := svc.StoreEnvSnapshot(r.Context(), &models.EnvSnapshot{
			EnvHash:     req.EnvHash,
			MachineArch: req.MachineArch,
			PythonVer:   req.PythonVer,
			OSInfo:      req.OSInfo,
			Packages:    req.Packages,
			EnvVars:     req.EnvVars,
		})
		if err != nil {
			if errors.Is(err, ingest.ErrInvalidSnapshot) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, envResponse{Stored: stored})
	}
}

type envResponse struct {
	Stored bool `json:"stored"`
}
