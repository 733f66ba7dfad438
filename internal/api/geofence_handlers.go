package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sentra-safety/sentra/internal/geofence"
	"github.com/sentra-safety/sentra/internal/middleware"
)

// GeofenceHandlers holds dependencies for geofence endpoints.
type GeofenceHandlers struct {
	repo      geofence.Repository
	evaluator *geofence.Evaluator
}

// NewGeofenceHandlers creates a new GeofenceHandlers instance.
func NewGeofenceHandlers(repo geofence.Repository, evaluator *geofence.Evaluator) *GeofenceHandlers {
	return &GeofenceHandlers{repo: repo, evaluator: evaluator}
}

// createGeofenceRequest is the POST /geofences body.
type createGeofenceRequest struct {
	Name          string  `json:"name"`
	Kind          string  `json:"kind"`
	CenterLat     float64 `json:"center_lat"`
	CenterLng     float64 `json:"center_lng"`
	RadiusM       float64 `json:"radius_m"`
	Active        *bool   `json:"active,omitempty"`
	NotifyOnEntry bool    `json:"notify_on_entry"`
	NotifyOnExit  bool    `json:"notify_on_exit"`
}

// CreateGeofence handles POST /geofences.
func (h *GeofenceHandlers) CreateGeofence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req createGeofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	fence := &geofence.Geofence{
		OwnerID:       userID,
		Name:          req.Name,
		Kind:          geofence.Kind(req.Kind),
		CenterLat:     req.CenterLat,
		CenterLng:     req.CenterLng,
		RadiusM:       req.RadiusM,
		Active:        true,
		NotifyOnEntry: req.NotifyOnEntry,
		NotifyOnExit:  req.NotifyOnExit,
	}
	if req.Active != nil {
		fence.Active = *req.Active
	}

	if err := fence.Validate(); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := h.repo.Insert(ctx, fence); err != nil {
		slog.ErrorContext(ctx, "failed to insert geofence", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create geofence")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, fence)
}

// ListGeofences handles GET /geofences.
func (h *GeofenceHandlers) ListGeofences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	fences, err := h.repo.ListByOwner(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list geofences", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list geofences")
		return
	}
	if fences == nil {
		fences = []*geofence.Geofence{}
	}

	WriteJSON(w, ctx, http.StatusOK, map[string]any{"geofences": fences})
}

// DeleteGeofence handles DELETE /geofences/{id}.
// Only the fence owner may delete it. The evaluator's containment state for
// the fence is dropped so a recreated fence starts fresh.
func (h *GeofenceHandlers) DeleteGeofence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	id := r.PathValue("id")
	fence, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, geofence.ErrGeofenceNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Geofence not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get geofence", "geofence_id", id, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load geofence")
		return
	}
	if fence.OwnerID != userID {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Not authorized for this geofence")
		return
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete geofence", "geofence_id", id, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete geofence")
		return
	}
	if h.evaluator != nil {
		h.evaluator.ForgetFence(userID, id)
	}

	w.WriteHeader(http.StatusNoContent)
}
