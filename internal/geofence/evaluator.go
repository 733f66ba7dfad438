package geofence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Transition is the direction of a fence boundary crossing.
type Transition string

const (
	TransitionEntry Transition = "ENTRY"
	TransitionExit  Transition = "EXIT"
)

// Event records one boundary crossing detected by the evaluator.
type Event struct {
	FenceID    string     `json:"fence_id"`
	FenceName  string     `json:"fence_name"`
	Kind       Kind       `json:"kind"`
	Transition Transition `json:"transition"`
	OwnerID    string     `json:"owner_id"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Dangerous reports whether the crossing warrants an SOS escalation:
// entering a RESTRICTED zone or leaving a SAFE_ZONE.
func (e *Event) Dangerous() bool {
	return (e.Kind == KindRestricted && e.Transition == TransitionEntry) ||
		(e.Kind == KindSafeZone && e.Transition == TransitionExit)
}

// EscalationPriority returns the SOS priority for a dangerous crossing.
// RESTRICTED entry is CRITICAL; SAFE_ZONE exit is HIGH.
func (e *Event) EscalationPriority() string {
	if e.Kind == KindRestricted {
		return "CRITICAL"
	}
	return "HIGH"
}

// AlertEscalator turns a dangerous crossing into an SOS alert.
type AlertEscalator interface {
	EscalateGeofenceEvent(ctx context.Context, event *Event) error
}

// NoticePublisher delivers informational crossings to live subscribers.
type NoticePublisher interface {
	PublishGeofenceNotice(ownerID string, event *Event)
}

// Evaluator checks each fix against the owner's active geofences and emits
// events only on containment transitions: consecutive fixes on the same side
// of a boundary are silent. A fence never seen before is treated as if the
// previous fix was outside it, so the first fix inside a fence fires an
// entry event.
type Evaluator struct {
	repo      Repository
	escalator AlertEscalator
	notices   NoticePublisher
	metrics   *Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	inside map[string]bool // ownerID|fenceID -> last known containment
}

// NewEvaluator creates a geofence evaluator. Escalator and notices may be
// nil; the corresponding event class is then dropped with a warning.
func NewEvaluator(repo Repository, escalator AlertEscalator, notices NoticePublisher, metrics *Metrics, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		repo:      repo,
		escalator: escalator,
		notices:   notices,
		metrics:   metrics,
		logger:    logger,
		inside:    make(map[string]bool),
	}
}

// Evaluate checks one fix against every active fence of the owner and acts
// on the transitions it finds. A crossing only fires when the fence opted
// into that direction (NotifyOnEntry/NotifyOnExit); unflagged crossings
// still update the containment state but stay silent. Escalation failures
// are collected and returned; notice publishing never fails.
func (e *Evaluator) Evaluate(ctx context.Context, ownerID string, lat, lng float64, capturedAt time.Time) error {
	fences, err := e.repo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load geofences: %w", err)
	}

	var errs []error
	for _, fence := range fences {
		event := e.transition(fence, ownerID, lat, lng, capturedAt)
		if event == nil {
			continue
		}
		e.metrics.RecordEvent(string(event.Kind), string(event.Transition))
		e.logger.Info("geofence transition",
			"owner_id", ownerID,
			"fence_id", event.FenceID,
			"fence_name", event.FenceName,
			"kind", event.Kind,
			"transition", event.Transition,
		)

		if !e.shouldNotify(fence, event.Transition) {
			continue
		}

		if event.Dangerous() {
			if e.escalator == nil {
				e.logger.Warn("dangerous geofence crossing with no escalator wired", "fence_id", event.FenceID)
				continue
			}
			if err := e.escalator.EscalateGeofenceEvent(ctx, event); err != nil {
				e.metrics.RecordEscalationError()
				errs = append(errs, fmt.Errorf("escalate crossing of fence %s: %w", event.FenceID, err))
			} else {
				e.metrics.RecordEscalation(string(event.Kind))
			}
			continue
		}

		if e.notices != nil {
			e.notices.PublishGeofenceNotice(ownerID, event)
		}
	}
	return errors.Join(errs...)
}

// transition updates the stored containment state for one fence and returns
// the crossing event, or nil if the fix stayed on the same side.
func (e *Evaluator) transition(fence *Geofence, ownerID string, lat, lng float64, capturedAt time.Time) *Event {
	contains := fence.Contains(lat, lng)
	key := ownerID + "|" + fence.ID

	e.mu.Lock()
	prev := e.inside[key] // absent means outside
	e.inside[key] = contains
	e.mu.Unlock()

	if prev == contains {
		return nil
	}

	transition := TransitionExit
	if contains {
		transition = TransitionEntry
	}
	return &Event{
		FenceID:    fence.ID,
		FenceName:  fence.Name,
		Kind:       fence.Kind,
		Transition: transition,
		OwnerID:    ownerID,
		Latitude:   lat,
		Longitude:  lng,
		OccurredAt: capturedAt,
	}
}

func (e *Evaluator) shouldNotify(fence *Geofence, t Transition) bool {
	if t == TransitionEntry {
		return fence.NotifyOnEntry
	}
	return fence.NotifyOnExit
}

// ForgetFence drops the stored containment state for a deleted fence so the
// map does not accumulate entries for fences that no longer exist.
func (e *Evaluator) ForgetFence(ownerID, fenceID string) {
	e.mu.Lock()
	delete(e.inside, ownerID+"|"+fenceID)
	e.mu.Unlock()
}
