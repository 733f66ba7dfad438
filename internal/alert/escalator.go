package alert

import (
	"context"
	"fmt"

	"github.com/sentra-safety/sentra/internal/geofence"
)

// GeofenceEscalator adapts the alert service to the evaluator's escalation
// hook: a dangerous boundary crossing becomes an SOS alert carrying the
// crossing's coordinates and a human-readable message.
type GeofenceEscalator struct {
	service *Service
}

// NewGeofenceEscalator creates the evaluator-facing adapter.
func NewGeofenceEscalator(service *Service) *GeofenceEscalator {
	return &GeofenceEscalator{service: service}
}

// EscalateGeofenceEvent creates an SOS alert for a dangerous crossing.
func (e *GeofenceEscalator) EscalateGeofenceEvent(ctx context.Context, event *geofence.Event) error {
	lat, lng := event.Latitude, event.Longitude

	var message string
	source := SourceGeofenceExit
	if event.Transition == geofence.TransitionEntry {
		source = SourceGeofenceEntry
		message = fmt.Sprintf("Entered restricted zone %q", event.FenceName)
	} else {
		message = fmt.Sprintf("Left safe zone %q", event.FenceName)
	}

	_, err := e.service.Create(ctx, &Alert{
		OwnerID:   event.OwnerID,
		Priority:  Priority(event.EscalationPriority()),
		Source:    source,
		Message:   message,
		Latitude:  &lat,
		Longitude: &lng,
	})
	if err != nil {
		return fmt.Errorf("failed to escalate geofence crossing: %w", err)
	}
	return nil
}
