package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/confsight/internal/api/response"
	"github.com/kiranshivaraju/confsight/internal/ingest"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// BeaconIngestor defines the intake interface the beacon handler depends on.
type BeaconIngestor interface {
	StoreBeacon(ctx context.Context, beacon *models.Beacon) (needEnv bool, err error)
}

// NewBeaconHandler returns an http.HandlerFunc for POST /api/v1/beacons.
func NewBeaconHandler(svc BeaconIngestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Kind     string          `json:"kind"`
			EnvHash  string          `json:"env_hash"`
			ScriptID string          `json:"script_id"`
			ErrorSig string          `json:"error_sig"`
			Trace    string          `json:"trace"`
			TS       json.RawMessage `json:"ts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		ts, err := parseTimestamp(req.TS)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "ts must be RFC3339 or epoch seconds", nil)
			return
		}

		needEnv, err := svc.StoreBeacon(r.Context(), &models.Beacon{
			Kind:     req.Kind,
			EnvHash:  req.EnvHash,
			ScriptID: req.ScriptID,
			ErrorSig: req.ErrorSig,
			Trace:    req.Trace,
			TS:       ts,
		})
		if err != nil {
			if errors.Is(err, ingest.ErrInvalidBeacon) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		response.JSON(w, beaconResponse{Stored: true, NeedEnv: needEnv})
	}
}

type beaconResponse struct {
	Stored  bool `json:"stored"`
	NeedEnv bool `json:"need_env"`
}

// parseTimestamp accepts an RFC3339 string or epoch seconds (number or
// numeric string). A missing timestamp yields the zero time; the intake
// service stamps it with the current time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(secs), nil
		}
		return time.Time{}, errors.New("unparseable timestamp string")
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		return epochToTime(secs), nil
	}
	return time.Time{}, errors.New("unparseable timestamp")
}

func epochToTime(secs float64) time.Time {
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}
