package geofence

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantMeters             float64
		tolerance              float64
	}{
		{
			name: "same_point",
			lat1: 28.6139, lng1: 77.2090, lat2: 28.6139, lng2: 77.2090,
			wantMeters: 0, tolerance: 0.01,
		},
		{
			name: "adjacent_points_delhi",
			lat1: 28.6139, lng1: 77.2090, lat2: 28.6140, lng2: 77.2091,
			wantMeters: 14.8, tolerance: 1,
		},
		{
			name: "one_degree_latitude",
			lat1: 0, lng1: 0, lat2: 1, lng2: 0,
			wantMeters: 111195, tolerance: 100,
		},
		{
			name: "antimeridian_crossing",
			lat1: 0, lng1: 179.9, lat2: 0, lng2: -179.9,
			wantMeters: 22239, tolerance: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantMeters) > tt.tolerance {
				t.Errorf("expected ~%vm, got %vm", tt.wantMeters, got)
			}
		})
	}
}

func TestGeofenceContains(t *testing.T) {
	fence := &Geofence{CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 50}

	if !fence.Contains(28.6139, 77.2090) {
		t.Error("center point must be inside")
	}
	if !fence.Contains(28.6140, 77.2091) {
		t.Error("point ~15m from center must be inside a 50m fence")
	}
	if fence.Contains(28.6200, 77.2090) {
		t.Error("point ~680m from center must be outside a 50m fence")
	}

	// Containment is monotone in the radius: growing the fence never
	// excludes a point it previously contained.
	lat, lng := 28.6150, 77.2100
	wasInside := false
	for radius := 10.0; radius <= 500; radius += 10 {
		fence.RadiusM = radius
		inside := fence.Contains(lat, lng)
		if wasInside && !inside {
			t.Fatalf("point left the fence when radius grew to %v", radius)
		}
		wasInside = inside
	}
	if !wasInside {
		t.Error("point must be inside once the radius is large enough")
	}
}

func TestGeofenceValidate(t *testing.T) {
	base := func() *Geofence {
		return &Geofence{
			OwnerID:   "owner-1",
			Name:      "Home",
			Kind:      KindHome,
			CenterLat: 28.6139,
			CenterLng: 77.2090,
			RadiusM:   100,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Geofence)
		wantErr error
	}{
		{name: "valid", mutate: func(g *Geofence) {}},
		{name: "missing_owner", mutate: func(g *Geofence) { g.OwnerID = "" }, wantErr: ErrMissingOwner},
		{name: "missing_name", mutate: func(g *Geofence) { g.Name = "" }, wantErr: ErrMissingName},
		{name: "unknown_kind", mutate: func(g *Geofence) { g.Kind = "DANGER" }, wantErr: ErrInvalidKind},
		{name: "zero_radius", mutate: func(g *Geofence) { g.RadiusM = 0 }, wantErr: ErrInvalidRadius},
		{name: "negative_radius", mutate: func(g *Geofence) { g.RadiusM = -5 }, wantErr: ErrInvalidRadius},
		{name: "center_out_of_range", mutate: func(g *Geofence) { g.CenterLat = 95 }, wantErr: ErrInvalidCenter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base()
			tt.mutate(g)
			err := g.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type fakeEscalator struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (f *fakeEscalator) EscalateGeofenceEvent(ctx context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeNotices struct {
	mu     sync.Mutex
	events []*Event
}

func (f *fakeNotices) PublishGeofenceNotice(ownerID string, event *Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func seedFence(t *testing.T, repo Repository, fence *Geofence) *Geofence {
	t.Helper()
	fence.Active = true
	if err := repo.Insert(context.Background(), fence); err != nil {
		t.Fatalf("failed to seed fence: %v", err)
	}
	return fence
}

func TestEvaluatorRestrictedEntryEscalates(t *testing.T) {
	repo := NewInMemoryRepository()
	escalator := &fakeEscalator{}
	eval := NewEvaluator(repo, escalator, nil, nil, nil)

	seedFence(t, repo, &Geofence{
		OwnerID: "owner-1", Name: "Construction site", Kind: KindRestricted,
		CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 50,
		NotifyOnEntry: true,
	})

	// First ever fix lands inside the restricted zone: with no prior state
	// the evaluator assumes the user was outside, so this is an entry.
	err := eval.Evaluate(context.Background(), "owner-1", 28.6140, 77.2091, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(escalator.events) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(escalator.events))
	}
	event := escalator.events[0]
	if event.Transition != TransitionEntry {
		t.Errorf("expected ENTRY, got %s", event.Transition)
	}
	if got := event.EscalationPriority(); got != "CRITICAL" {
		t.Errorf("restricted entry must escalate CRITICAL, got %s", got)
	}
}

func TestEvaluatorEmitsOnlyOnTransition(t *testing.T) {
	repo := NewInMemoryRepository()
	escalator := &fakeEscalator{}
	eval := NewEvaluator(repo, escalator, nil, nil, nil)

	seedFence(t, repo, &Geofence{
		OwnerID: "owner-1", Name: "No-go", Kind: KindRestricted,
		CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 50,
		NotifyOnEntry: true,
	})

	ctx := context.Background()
	// Three consecutive fixes inside: only the first is a crossing.
	for i := 0; i < 3; i++ {
		if err := eval.Evaluate(ctx, "owner-1", 28.6140, 77.2091, time.Now()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(escalator.events) != 1 {
		t.Fatalf("expected exactly 1 event for 3 inside fixes, got %d", len(escalator.events))
	}

	// Leave, then re-enter: two more crossings (exit is silent for
	// RESTRICTED, re-entry escalates again).
	if err := eval.Evaluate(ctx, "owner-1", 28.7000, 77.3000, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eval.Evaluate(ctx, "owner-1", 28.6140, 77.2091, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(escalator.events) != 2 {
		t.Fatalf("expected 2 escalations after re-entry, got %d", len(escalator.events))
	}
}

func TestEvaluatorSafeZoneExitEscalatesHigh(t *testing.T) {
	repo := NewInMemoryRepository()
	escalator := &fakeEscalator{}
	eval := NewEvaluator(repo, escalator, nil, nil, nil)

	seedFence(t, repo, &Geofence{
		OwnerID: "owner-1", Name: "School grounds", Kind: KindSafeZone,
		CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 200,
		NotifyOnExit: true,
	})

	ctx := context.Background()
	// Enter the safe zone (informational, not dangerous), then leave it.
	if err := eval.Evaluate(ctx, "owner-1", 28.6139, 77.2090, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(escalator.events) != 0 {
		t.Fatalf("safe zone entry must not escalate, got %d events", len(escalator.events))
	}

	if err := eval.Evaluate(ctx, "owner-1", 28.7000, 77.3000, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(escalator.events) != 1 {
		t.Fatalf("expected 1 escalation on safe zone exit, got %d", len(escalator.events))
	}
	if got := escalator.events[0].EscalationPriority(); got != "HIGH" {
		t.Errorf("safe zone exit must escalate HIGH, got %s", got)
	}
}

func TestEvaluatorInformationalNotices(t *testing.T) {
	repo := NewInMemoryRepository()
	notices := &fakeNotices{}
	eval := NewEvaluator(repo, nil, notices, nil, nil)

	seedFence(t, repo, &Geofence{
		OwnerID: "owner-1", Name: "Home", Kind: KindHome,
		CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 100,
		NotifyOnEntry: true,
	})
	seedFence(t, repo, &Geofence{
		OwnerID: "owner-1", Name: "Park", Kind: KindCustom,
		CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 100,
		// notify flags off: crossings stay silent
	})

	ctx := context.Background()
	if err := eval.Evaluate(ctx, "owner-1", 28.6139, 77.2090, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notices.events) != 1 {
		t.Fatalf("expected 1 notice (home entry only), got %d", len(notices.events))
	}
	if notices.events[0].Kind != KindHome {
		t.Errorf("expected HOME notice, got %s", notices.events[0].Kind)
	}
}

func TestEvaluatorEscalationErrorIsReturned(t *testing.T) {
	repo := NewInMemoryRepository()
	escalator := &fakeEscalator{err: errors.New("alert store down")}
	eval := NewEvaluator(repo, escalator, nil, nil, nil)

	seedFence(t, repo, &Geofence{
		OwnerID: "owner-1", Name: "No-go", Kind: KindRestricted,
		CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 50,
		NotifyOnEntry: true,
	})

	err := eval.Evaluate(context.Background(), "owner-1", 28.6139, 77.2090, time.Now())
	if err == nil {
		t.Fatal("expected escalation error to surface")
	}
}

func TestEvaluatorRespectsFenceFlags(t *testing.T) {
	tests := []struct {
		name  string
		fence *Geofence
	}{
		{
			name: "restricted_entry_with_flag_off",
			fence: &Geofence{
				OwnerID: "owner-1", Name: "Old quarry", Kind: KindRestricted,
				CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 50,
			},
		},
		{
			name: "safe_zone_exit_with_flag_off",
			fence: &Geofence{
				OwnerID: "owner-1", Name: "Campus", Kind: KindSafeZone,
				CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 200,
				NotifyOnEntry: true, // entry flagged, exit is not
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewInMemoryRepository()
			escalator := &fakeEscalator{}
			notices := &fakeNotices{}
			eval := NewEvaluator(repo, escalator, notices, nil, nil)
			seedFence(t, repo, tt.fence)

			ctx := context.Background()
			// Enter the fence, then leave it: both crossing directions occur.
			if err := eval.Evaluate(ctx, "owner-1", 28.6140, 77.2091, time.Now()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := eval.Evaluate(ctx, "owner-1", 28.7000, 77.3000, time.Now()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for _, event := range escalator.events {
				if !eval.shouldNotify(tt.fence, event.Transition) {
					t.Errorf("escalated a %s crossing the fence did not flag", event.Transition)
				}
			}
			if tt.fence.Kind == KindRestricted && len(escalator.events) != 0 {
				t.Errorf("expected no escalation with entry flag off, got %d", len(escalator.events))
			}
			if tt.fence.Kind == KindSafeZone {
				if len(escalator.events) != 0 {
					t.Errorf("expected no escalation with exit flag off, got %d", len(escalator.events))
				}
				// The flagged entry is informational for a safe zone.
				if len(notices.events) != 1 {
					t.Errorf("expected 1 entry notice, got %d", len(notices.events))
				}
			}
		})
	}
}

func TestEvaluatorForgetFence(t *testing.T) {
	repo := NewInMemoryRepository()
	escalator := &fakeEscalator{}
	eval := NewEvaluator(repo, escalator, nil, nil, nil)

	fence := seedFence(t, repo, &Geofence{
		OwnerID: "owner-1", Name: "No-go", Kind: KindRestricted,
		CenterLat: 28.6139, CenterLng: 77.2090, RadiusM: 50,
		NotifyOnEntry: true,
	})

	ctx := context.Background()
	if err := eval.Evaluate(ctx, "owner-1", 28.6139, 77.2090, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eval.ForgetFence("owner-1", fence.ID)

	// With the state forgotten, the next inside fix is again an entry.
	if err := eval.Evaluate(ctx, "owner-1", 28.6139, 77.2090, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(escalator.events) != 2 {
		t.Fatalf("expected a second entry after ForgetFence, got %d events", len(escalator.events))
	}
}
