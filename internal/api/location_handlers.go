package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sentra-safety/sentra/internal/location"
	"github.com/sentra-safety/sentra/internal/middleware"
)

// LocationHandlers holds dependencies for telemetry endpoints.
type LocationHandlers struct {
	gateway *location.Gateway
	repo    location.SampleRepository
}

// NewLocationHandlers creates a new LocationHandlers instance.
func NewLocationHandlers(gateway *location.Gateway, repo location.SampleRepository) *LocationHandlers {
	return &LocationHandlers{gateway: gateway, repo: repo}
}

// submitLocationRequest is the POST /locations body.
type submitLocationRequest struct {
	DeviceID   *string    `json:"device_id,omitempty"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Altitude   *float64   `json:"altitude,omitempty"`
	Accuracy   *float64   `json:"accuracy,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	Address    *string    `json:"address,omitempty"`
	IsSOS      bool       `json:"is_sos"`
	IsHome     bool       `json:"is_home"`
	IsWork     bool       `json:"is_work"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// SubmitLocation handles POST /locations.
// The authenticated user is the sample's owner; geofence evaluation and
// live-stream fan-out happen before the response is written, but their
// failures never surface here.
func (h *LocationHandlers) SubmitLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req submitLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	sample := &location.Sample{
		OwnerID:   userID,
		DeviceID:  req.DeviceID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Altitude:  req.Altitude,
		Accuracy:  req.Accuracy,
		Speed:     req.Speed,
		Heading:   req.Heading,
		Address:   req.Address,
		IsSOS:     req.IsSOS,
		IsHome:    req.IsHome,
		IsWork:    req.IsWork,
	}
	if req.CapturedAt != nil {
		sample.CapturedAt = *req.CapturedAt
	}

	stored, err := h.gateway.Submit(ctx, sample)
	if err != nil {
		if errors.Is(err, location.ErrInvalidLatitude) ||
			errors.Is(err, location.ErrInvalidLongitude) ||
			errors.Is(err, location.ErrMissingOwner) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		slog.ErrorContext(ctx, "failed to submit location sample", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store location sample")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, stored)
}

// ListLocations handles GET /locations.
// Returns the authenticated user's most recent samples, newest first.
func (h *LocationHandlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer between 1 and 500")
			return
		}
		limit = parsed
	}

	samples, err := h.repo.ListByOwner(ctx, userID, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list location samples", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list location samples")
		return
	}
	if samples == nil {
		samples = []*location.Sample{}
	}

	WriteJSON(w, ctx, http.StatusOK, map[string]any{"samples": samples})
}
