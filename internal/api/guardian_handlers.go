package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sentra-safety/sentra/internal/guardian"
	"github.com/sentra-safety/sentra/internal/middleware"
)

// GuardianHandlers holds dependencies for guardian subscription endpoints.
type GuardianHandlers struct {
	repo guardian.Repository
}

// NewGuardianHandlers creates a new GuardianHandlers instance.
func NewGuardianHandlers(repo guardian.Repository) *GuardianHandlers {
	return &GuardianHandlers{repo: repo}
}

// createSubscriptionRequest is the POST /guardians/subscriptions body.
type createSubscriptionRequest struct {
	OwnerID        string `json:"owner_id"`
	Relationship   string `json:"relationship,omitempty"`
	NotifySOS      bool   `json:"notify_sos"`
	NotifyLocation bool   `json:"notify_location"`
}

// CreateSubscription handles POST /guardians/subscriptions.
// The authenticated user becomes a guardian of the given owner.
func (h *GuardianHandlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	sub := &guardian.Subscription{
		GuardianID:     userID,
		OwnerID:        req.OwnerID,
		Relationship:   req.Relationship,
		NotifySOS:      req.NotifySOS,
		NotifyLocation: req.NotifyLocation,
	}

	if err := sub.Validate(); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := h.repo.Insert(ctx, sub); err != nil {
		if errors.Is(err, guardian.ErrDuplicateSubscription) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeDuplicateSubscription)
			WriteError(w, ctx, http.StatusConflict, ErrCodeDuplicateSubscription, "Already subscribed to this owner")
			return
		}
		slog.ErrorContext(ctx, "failed to insert guardian subscription", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create subscription")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /guardians/subscriptions.
// Returns the owners the authenticated user watches.
func (h *GuardianHandlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	subs, err := h.repo.ListByGuardian(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list guardian subscriptions", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []*guardian.Subscription{}
	}

	WriteJSON(w, ctx, http.StatusOK, map[string]any{"subscriptions": subs})
}

// DeleteSubscription handles DELETE /guardians/subscriptions/{ownerID}.
// The authenticated user stops watching the given owner.
func (h *GuardianHandlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	ownerID := r.PathValue("ownerID")
	if err := h.repo.Delete(ctx, userID, ownerID); err != nil {
		if errors.Is(err, guardian.ErrSubscriptionNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Subscription not found")
			return
		}
		slog.ErrorContext(ctx, "failed to delete guardian subscription", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
