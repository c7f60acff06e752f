package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kiranshivaraju/confsight/internal/analysis"
	"github.com/kiranshivaraju/confsight/internal/api/response"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// AnalysisRunner defines the interface the run handler depends on.
type AnalysisRunner interface {
	Run(ctx context.Context, params analysis.RunParams) (*models.AnalysisRun, error)
}

// RunLister defines the interface the run listing handler depends on.
type RunLister interface {
	ListAnalysisRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error)
}

// NewRunAnalysisHandler returns an http.HandlerFunc for POST /api/v1/analysis/run.
// The run executes synchronously; a second request while one is running gets 409.
func NewRunAnalysisHandler(runner AnalysisRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			WindowHours     float64 `json:"window_hours"`
			Epsilon         float64 `json:"epsilon"`
			MinSamples      int     `json:"min_samples"`
			SignificanceMin float64 `json:"significance_min"`
			SupportMin      int     `json:"support_min"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		if req.WindowHours < 0 || req.Epsilon < 0 || req.Epsilon > 1 || req.MinSamples < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "analysis parameters out of range", nil)
			return
		}

		run, err := runner.Run(r.Context(), analysis.RunParams{
			Window:          time.Duration(req.WindowHours * float64(time.Hour)),
			Epsilon:         req.Epsilon,
			MinSamples:      req.MinSamples,
			SignificanceMin: req.SignificanceMin,
			SupportMin:      req.SupportMin,
		})
		if err != nil {
			switch {
			case errors.Is(err, analysis.ErrRunInProgress):
				response.Error(w, http.StatusConflict, "RUN_IN_PROGRESS",
					"An analysis run is already in progress", nil)
			default:
				// The run row records the failure; surface it as a server error.
				response.Error(w, http.StatusInternalServerError, "ANALYSIS_FAILED",
					"The analysis run failed", nil)
			}
			return
		}

		response.JSON(w, run)
	}
}

// NewListRunsHandler returns an http.HandlerFunc for GET /api/v1/analysis/runs.
func NewListRunsHandler(lister RunLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		runs, err := lister.ListAnalysisRuns(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if runs == nil {
			runs = []*models.AnalysisRun{}
		}
		response.Collection(w, runs, response.CollectionMeta{Limit: limit, Total: len(runs)})
	}
}
