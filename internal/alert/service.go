package alert

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// lockStripes is the number of mutex stripes guarding alert transitions.
const lockStripes = 64

// Dispatcher delivers an alert to the owner's emergency contacts and
// guardians over the configured channels. Implementations must be safe for
// concurrent use; the service calls them asynchronously.
type Dispatcher interface {
	// DispatchAlert fans a newly created alert out over every channel.
	DispatchAlert(ctx context.Context, alert *Alert)

	// DispatchStatusChange informs recipients of a lifecycle transition.
	DispatchStatusChange(ctx context.Context, alert *Alert, previous Status)
}

// Streamer pushes alert frames onto the owner's live subscriber stream.
// *location.Registry satisfies this.
type Streamer interface {
	FanoutAlert(ownerID string, alert any)
}

// Service owns the alert lifecycle. Transitions for one alert are
// serialized through a striped mutex and re-check the stored state under
// the lock, so two responders racing to acknowledge the same alert cannot
// both win.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	streamer   Streamer
	metrics    *Metrics
	logger     *slog.Logger

	stripes [lockStripes]sync.Mutex
}

// NewService creates an alert service. Dispatcher and streamer may be nil
// (alerts are then stored without side effects, which tests rely on).
func NewService(repo Repository, dispatcher Dispatcher, streamer Streamer, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		streamer:   streamer,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *Service) stripe(alertID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(alertID))
	return &s.stripes[h.Sum32()%lockStripes]
}

// Create validates and stores a new ACTIVE alert, then kicks off channel
// dispatch and the live-stream push in the background. The returned alert
// is canonical regardless of how dispatch fares.
func (s *Service) Create(ctx context.Context, alert *Alert) (*Alert, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	alert.Status = StatusActive
	if alert.Priority == "" {
		alert.Priority = PriorityCritical
	}
	if alert.Source == "" {
		alert.Source = SourceSOSButton
	}

	if err := s.repo.Insert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}
	s.metrics.RecordCreated(string(alert.Priority), string(alert.Source))
	s.logger.Info("sos alert created",
		"alert_id", alert.ID,
		"owner_id", alert.OwnerID,
		"priority", alert.Priority,
		"source", alert.Source,
	)

	snapshot := *alert
	if s.streamer != nil {
		s.streamer.FanoutAlert(snapshot.OwnerID, &snapshot)
	}
	if s.dispatcher != nil {
		go s.dispatchIsolated(func(ctx context.Context) {
			s.dispatcher.DispatchAlert(ctx, &snapshot)
		})
	}
	return alert, nil
}

// Acknowledge marks an ACTIVE alert as seen by a responder. Acknowledging
// an already-acknowledged alert is a no-op that returns the stored record
// without re-stamping who acknowledged it first.
func (s *Service) Acknowledge(ctx context.Context, id, byUserID string) (*Alert, error) {
	return s.transition(ctx, id, StatusAcknowledged, func(a *Alert, now time.Time) {
		a.AcknowledgedBy = &byUserID
		a.AcknowledgedAt = &now
	})
}

// Resolve closes an alert as handled and stamps the response time, the span
// from creation to resolution, exactly once. Resolving an already-resolved
// alert is a no-op; resolving a cancelled alert is an illegal transition.
func (s *Service) Resolve(ctx context.Context, id, byUserID string) (*Alert, error) {
	return s.transition(ctx, id, StatusResolved, func(a *Alert, now time.Time) {
		a.ResolvedBy = &byUserID
		a.ResolvedAt = &now
		if a.ResponseTimeSeconds == nil {
			rt := now.Sub(a.CreatedAt).Seconds()
			a.ResponseTimeSeconds = &rt
			s.metrics.ObserveResponseTime(now.Sub(a.CreatedAt))
		}
	})
}

// Cancel withdraws an alert as a false trigger. Cancelled alerts get no
// response time and can never be resolved afterwards.
func (s *Service) Cancel(ctx context.Context, id, byUserID string) (*Alert, error) {
	return s.transition(ctx, id, StatusCancelled, func(a *Alert, now time.Time) {
		a.CancelledBy = &byUserID
		a.CancelledAt = &now
	})
}

// Get returns the canonical alert record.
func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByOwner returns an owner's alerts, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Alert, error) {
	return s.repo.ListByOwner(ctx, ownerID, limit)
}

// transition moves an alert to a target status under its stripe lock.
// Repeating the transition the alert is already in is an idempotent no-op.
func (s *Service) transition(ctx context.Context, id string, to Status, apply func(*Alert, time.Time)) (*Alert, error) {
	mu := s.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == to {
		return alert, nil
	}
	if !CanTransition(alert.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, to)
	}

	previous := alert.Status
	alert.Status = to
	apply(alert, time.Now())

	if err := s.repo.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to store alert transition: %w", err)
	}
	s.metrics.RecordTransition(string(previous), string(to))
	s.logger.Info("sos alert transition",
		"alert_id", alert.ID,
		"owner_id", alert.OwnerID,
		"from", previous,
		"to", to,
	)

	snapshot := *alert
	if s.streamer != nil {
		s.streamer.FanoutAlert(snapshot.OwnerID, &snapshot)
	}
	if s.dispatcher != nil {
		go s.dispatchIsolated(func(ctx context.Context) {
			s.dispatcher.DispatchStatusChange(ctx, &snapshot, previous)
		})
	}
	return alert, nil
}

// dispatchIsolated runs a dispatch callback with its own context and panic
// containment, so notification failures never reach the transition caller.
func (s *Service) dispatchIsolated(fn func(ctx context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.RecordDispatchPanic()
			s.logger.Error("alert dispatch panicked", "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	fn(ctx)
}
