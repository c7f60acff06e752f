package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/confsight/internal/api/response"
	"github.com/kiranshivaraju/confsight/internal/embedding"
	"github.com/kiranshivaraju/confsight/internal/suggest"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// Suggester defines the interface the suggest handler depends on.
type Suggester interface {
	Suggest(ctx context.Context, params suggest.Params) (*models.SuggestResult, error)
}

// NewSuggestHandler returns an http.HandlerFunc for POST /api/v1/suggest.
// A no-match outcome is a normal 200 response with match=false.
func NewSuggestHandler(svc Suggester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req suggest.Params
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.ErrorSig == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "error_sig is required", nil)
			return
		}

		result, err := svc.Suggest(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, embedding.ErrProviderUnavailable):
				response.Error(w, http.StatusBadGateway, "EMBEDDING_UNAVAILABLE",
					"The embedding provider is not available", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, result)
	}
}
