package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sentra-safety/sentra/internal/alert"
	"github.com/sentra-safety/sentra/internal/guardian"
	"github.com/sentra-safety/sentra/internal/middleware"
	"github.com/sentra-safety/sentra/internal/notify"
)

// AlertHandlers holds dependencies for SOS alert endpoints.
type AlertHandlers struct {
	service       *alert.Service
	guardians     guardian.Repository
	notifications notify.Repository
}

// NewAlertHandlers creates a new AlertHandlers instance.
func NewAlertHandlers(service *alert.Service, guardians guardian.Repository, notifications notify.Repository) *AlertHandlers {
	return &AlertHandlers{service: service, guardians: guardians, notifications: notifications}
}

// createAlertRequest is the POST /alerts body.
type createAlertRequest struct {
	Priority  string   `json:"priority,omitempty"`
	Message   string   `json:"message,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   *string  `json:"address,omitempty"`
}

// CreateAlert handles POST /alerts.
// The authenticated user is the alert owner; notification dispatch runs in
// the background and the alert is returned immediately.
func (h *AlertHandlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	created, err := h.service.Create(ctx, &alert.Alert{
		OwnerID:   userID,
		Priority:  alert.Priority(req.Priority),
		Source:    alert.SourceSOSButton,
		Message:   req.Message,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Address:   req.Address,
	})
	if err != nil {
		if errors.Is(err, alert.ErrInvalidPriority) || errors.Is(err, alert.ErrMissingOwner) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		slog.ErrorContext(ctx, "failed to create alert", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create alert")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, created)
}

// GetAlert handles GET /alerts/{id}.
// Visible to the alert owner and their guardians.
func (h *AlertHandlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}
	WriteJSON(w, ctx, http.StatusOK, a)
}

// ListAlertNotifications handles GET /alerts/{id}/notifications.
// Returns the delivery audit trail of an alert, oldest first.
func (h *AlertHandlers) ListAlertNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	records, err := h.notifications.ListByAlert(ctx, a.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list notifications", "alert_id", a.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list notifications")
		return
	}
	if records == nil {
		records = []*notify.Notification{}
	}

	WriteJSON(w, ctx, http.StatusOK, map[string]any{"notifications": records})
}

// AcknowledgeAlert handles POST /alerts/{id}/acknowledge.
func (h *AlertHandlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, userID string) (*alert.Alert, error) {
		return h.service.Acknowledge(r.Context(), id, userID)
	})
}

// ResolveAlert handles POST /alerts/{id}/resolve.
func (h *AlertHandlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, userID string) (*alert.Alert, error) {
		return h.service.Resolve(r.Context(), id, userID)
	})
}

// CancelAlert handles POST /alerts/{id}/cancel.
func (h *AlertHandlers) CancelAlert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, userID string) (*alert.Alert, error) {
		return h.service.Cancel(r.Context(), id, userID)
	})
}

func (h *AlertHandlers) transition(w http.ResponseWriter, r *http.Request, apply func(id, userID string) (*alert.Alert, error)) {
	ctx := r.Context()

	a, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	updated, err := apply(a.ID, middleware.GetUserID(ctx))
	if err != nil {
		if errors.Is(err, alert.ErrInvalidTransition) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeStateTransition)
			WriteError(w, ctx, http.StatusConflict, ErrCodeStateTransition, err.Error())
			return
		}
		if errors.Is(err, alert.ErrAlertNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Alert not found")
			return
		}
		slog.ErrorContext(ctx, "failed to transition alert", "alert_id", a.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update alert")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, updated)
}

// loadAuthorized fetches the alert from the path id and checks that the
// requester is its owner or one of the owner's guardians. Writes the error
// response itself when the check fails.
func (h *AlertHandlers) loadAuthorized(w http.ResponseWriter, r *http.Request) (*alert.Alert, bool) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return nil, false
	}

	id := r.PathValue("id")
	a, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Alert not found")
			return nil, false
		}
		slog.ErrorContext(ctx, "failed to get alert", "alert_id", id, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load alert")
		return nil, false
	}

	if a.OwnerID != userID {
		if _, err := h.guardians.Get(ctx, userID, a.OwnerID); err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Not authorized for this alert")
			return nil, false
		}
	}
	return a, true
}
