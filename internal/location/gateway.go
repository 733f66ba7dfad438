package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// GeofenceEvaluator checks a fix against the owner's geofences and carries
// out whatever the resulting transitions require (escalation, guardian
// notices). Implementations must be safe for concurrent use.
type GeofenceEvaluator interface {
	Evaluate(ctx context.Context, ownerID string, lat, lng float64, capturedAt time.Time) error
}

// Gateway is the single entry point for device telemetry. It validates and
// persists each sample, then runs the geofence evaluation and live-stream
// fan-out as isolated best-effort side effects: a failure in either is
// logged and counted but never fails the submission, and a panic in one
// cannot take down the other.
type Gateway struct {
	repo      SampleRepository
	registry  *Registry
	evaluator GeofenceEvaluator
	metrics   *Metrics
	logger    *slog.Logger

	// highWater tracks the newest accepted captured-at per device session
	// so late-arriving fixes can be flagged.
	mu        sync.Mutex
	highWater map[string]time.Time
}

// NewGateway creates an ingest gateway. The evaluator may be nil, in which
// case geofence evaluation is skipped.
func NewGateway(repo SampleRepository, registry *Registry, evaluator GeofenceEvaluator, metrics *Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		repo:      repo,
		registry:  registry,
		evaluator: evaluator,
		metrics:   metrics,
		logger:    logger,
		highWater: make(map[string]time.Time),
	}
}

// Submit validates, normalizes, and persists a sample, then triggers the
// geofence and fan-out side effects. Only validation and persistence
// failures are returned to the caller.
func (g *Gateway) Submit(ctx context.Context, sample *Sample) (*Sample, error) {
	if err := sample.Validate(); err != nil {
		g.metrics.RecordSampleRejected(rejectReason(err))
		return nil, err
	}

	sample.NormalizeCoordinates()
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now()
	}
	sample.OutOfOrder = g.markHighWater(sample)
	if sample.OutOfOrder {
		g.metrics.RecordOutOfOrder()
		g.logger.Debug("accepted out-of-order sample",
			"owner_id", sample.OwnerID,
			"captured_at", sample.CapturedAt,
		)
	}

	if err := g.repo.Insert(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to persist location sample: %w", err)
	}
	g.metrics.RecordSampleIngested()

	// Side effects run concurrently but Submit waits for both, so a device
	// session that submits sequentially observes its samples fanned out in
	// capture order.
	var wg sync.WaitGroup
	if g.evaluator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.runIsolated(ctx, "geofence_evaluate", sample, func() error {
				return g.evaluator.Evaluate(ctx, sample.OwnerID, sample.Latitude, sample.Longitude, sample.CapturedAt)
			})
		}()
	}
	if g.registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.runIsolated(ctx, "stream_fanout", sample, func() error {
				g.registry.FanoutSample(sample.OwnerID, sample)
				return nil
			})
		}()
	}
	wg.Wait()

	return sample, nil
}

// markHighWater records the sample against the per-session high-water mark
// and reports whether it arrived out of capture order.
func (g *Gateway) markHighWater(sample *Sample) bool {
	key := sample.OwnerID
	if sample.DeviceID != nil {
		key += "/" + *sample.DeviceID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	newest, seen := g.highWater[key]
	if seen && sample.CapturedAt.Before(newest) {
		return true
	}
	g.highWater[key] = sample.CapturedAt
	return false
}

// runIsolated executes one side effect with panic containment.
func (g *Gateway) runIsolated(ctx context.Context, effect string, sample *Sample, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			g.metrics.RecordSideEffectError(effect)
			g.logger.Error("ingest side effect panicked",
				"effect", effect,
				"owner_id", sample.OwnerID,
				"sample_id", sample.ID,
				"panic", rec,
			)
		}
	}()

	if err := fn(); err != nil {
		g.metrics.RecordSideEffectError(effect)
		g.logger.Error("ingest side effect failed",
			"effect", effect,
			"owner_id", sample.OwnerID,
			"sample_id", sample.ID,
			"error", err,
		)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLatitude):
		return "latitude"
	case errors.Is(err, ErrInvalidLongitude):
		return "longitude"
	case errors.Is(err, ErrMissingOwner):
		return "missing_owner"
	default:
		return "invalid"
	}
}
