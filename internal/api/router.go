package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/confsight/internal/api/middleware"
	"github.com/kiranshivaraju/confsight/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler http.HandlerFunc

	BeaconHandler http.HandlerFunc
	EnvHandler    http.HandlerFunc

	RunAnalysisHandler http.HandlerFunc
	ListRunsHandler    http.HandlerFunc

	SuggestHandler http.HandlerFunc
	StatsHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Post("/api/v1/beacons", orNotImplemented(deps.BeaconHandler))
	r.Post("/api/v1/envs", orNotImplemented(deps.EnvHandler))

	r.Post("/api/v1/analysis/run", orNotImplemented(deps.RunAnalysisHandler))
	r.Get("/api/v1/analysis/runs", orNotImplemented(deps.ListRunsHandler))

	r.Post("/api/v1/suggest", orNotImplemented(deps.SuggestHandler))
	r.Get("/api/v1/stats", orNotImplemented(deps.StatsHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
