package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/confsight/internal/api/response"
	"github.com/kiranshivaraju/confsight/internal/store"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// StatsStore is the read subset of the store the stats handler depends on.
type StatsStore interface {
	CurrentGenerationID(ctx context.Context) (uuid.UUID, error)
	GenerationStats(ctx context.Context, generationID uuid.UUID) (clusters int, patterns int, err error)
	TopPatterns(ctx context.Context, generationID uuid.UUID, limit int) ([]*models.ConfigPattern, error)
}

type statsResponse struct {
	GenerationID string                  `json:"generation_id,omitempty"`
	Clusters     int                     `json:"clusters"`
	Patterns     int                     `json:"patterns"`
	TopPatterns  []*models.ConfigPattern `json:"top_patterns"`
}

// NewStatsHandler returns an http.HandlerFunc for GET /api/v1/stats.
// Before the first analysis commit, all totals are zero.
func NewStatsHandler(st StatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generationID, err := st.CurrentGenerationID(r.Context())
		if errors.Is(err, store.ErrNotFound) {
			response.JSON(w, statsResponse{TopPatterns: []*models.ConfigPattern{}})
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		clusters, patterns, err := st.GenerationStats(r.Context(), generationID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		top, err := st.TopPatterns(r.Context(), generationID, 10)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if top == nil {
			top = []*models.ConfigPattern{}
		}

		response.JSON(w, statsResponse{
			GenerationID: generationID.String(),
			Clusters:     clusters,
			Patterns:     patterns,
			TopPatterns:  top,
		})
	}
}
