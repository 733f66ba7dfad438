// Package alert implements the SOS alert lifecycle: creation, the
// ACTIVE/ACKNOWLEDGED/RESOLVED/CANCELLED state machine, and response-time
// accounting.
package alert

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an SOS alert.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
	StatusCancelled    Status = "CANCELLED"
)

// Priority grades how urgent an alert is.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Source records what created the alert.
type Source string

const (
	SourceSOSButton     Source = "SOS_BUTTON"
	SourceGeofenceEntry Source = "GEOFENCE_ENTRY"
	SourceGeofenceExit  Source = "GEOFENCE_EXIT"
	SourceApp           Source = "APP"
)

// Alert errors.
var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidTransition = errors.New("illegal alert state transition")
	ErrInvalidPriority   = errors.New("invalid alert priority")
	ErrMissingOwner      = errors.New("owner id is required")
)

// IsValid checks whether the priority is one of the known values.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// CanTransition reports whether moving from one status to another is legal.
// RESOLVED and CANCELLED are terminal; in particular a cancelled alert can
// never be resolved afterwards.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusAcknowledged || to == StatusResolved || to == StatusCancelled
	case StatusAcknowledged:
		return to == StatusResolved || to == StatusCancelled
	}
	return false
}

// Alert is one SOS incident. Timestamps for acknowledge/resolve/cancel are
// written exactly once; repeated calls for the same transition are no-ops
// that leave the stamps untouched.
type Alert struct {
	ID       string   `json:"id"`
	OwnerID  string   `json:"owner_id"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
	Source   Source   `json:"source"`
	Message  string   `json:"message,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   *string  `json:"address,omitempty"`

	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CancelledBy    *string    `json:"cancelled_by,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`

	// ResponseTimeSeconds is set once, when the alert is resolved, as the
	// span from creation to resolution. Cancelled alerts never get one.
	ResponseTimeSeconds *float64 `json:"response_time_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields on a new alert.
func (a *Alert) Validate() error {
	if a.OwnerID == "" {
		return ErrMissingOwner
	}
	if a.Priority != "" && !a.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, a.Priority)
	}
	return nil
}
