package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sentra-safety/sentra/internal/contact"
	"github.com/sentra-safety/sentra/internal/middleware"
)

// ContactHandlers holds dependencies for emergency contact endpoints.
type ContactHandlers struct {
	repo contact.Repository
}

// NewContactHandlers creates a new ContactHandlers instance.
func NewContactHandlers(repo contact.Repository) *ContactHandlers {
	return &ContactHandlers{repo: repo}
}

// createContactRequest is the POST /contacts body.
type createContactRequest struct {
	Name         string  `json:"name"`
	Phone        *string `json:"phone,omitempty"`
	Email        *string `json:"email,omitempty"`
	PushToken    *string `json:"push_token,omitempty"`
	Relationship string  `json:"relationship,omitempty"`
	IsPrimary    bool    `json:"is_primary"`
	NotifySMS    bool    `json:"notify_sms"`
	NotifyEmail  bool    `json:"notify_email"`
	NotifyCall   bool    `json:"notify_call"`
	NotifyPush   bool    `json:"notify_push"`
}

// CreateContact handles POST /contacts.
func (h *ContactHandlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req createContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	c := &contact.Contact{
		OwnerID:      userID,
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		PushToken:    req.PushToken,
		Relationship: req.Relationship,
		IsPrimary:    req.IsPrimary,
		NotifySMS:    req.NotifySMS,
		NotifyEmail:  req.NotifyEmail,
		NotifyCall:   req.NotifyCall,
		NotifyPush:   req.NotifyPush,
		Active:       true,
	}

	if err := c.Validate(); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := h.repo.Insert(ctx, c); err != nil {
		slog.ErrorContext(ctx, "failed to insert emergency contact", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create contact")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, c)
}

// ListContacts handles GET /contacts.
// Contacts come back in dispatch order: primary first, then by name.
func (h *ContactHandlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	contacts, err := h.repo.ListByOwner(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list emergency contacts", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list contacts")
		return
	}
	if contacts == nil {
		contacts = []*contact.Contact{}
	}

	WriteJSON(w, ctx, http.StatusOK, map[string]any{"contacts": contacts})
}

// DeleteContact handles DELETE /contacts/{id}.
func (h *ContactHandlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	id := r.PathValue("id")
	c, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, contact.ErrContactNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Contact not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get emergency contact", "contact_id", id, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load contact")
		return
	}
	if c.OwnerID != userID {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Not authorized for this contact")
		return
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete emergency contact", "contact_id", id, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete contact")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
