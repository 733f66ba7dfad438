package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"active_to_acknowledged", StatusActive, StatusAcknowledged, true},
		{"active_to_resolved", StatusActive, StatusResolved, true},
		{"active_to_cancelled", StatusActive, StatusCancelled, true},
		{"acknowledged_to_resolved", StatusAcknowledged, StatusResolved, true},
		{"acknowledged_to_cancelled", StatusAcknowledged, StatusCancelled, true},
		{"acknowledged_to_active", StatusAcknowledged, StatusActive, false},
		{"resolved_is_terminal", StatusResolved, StatusAcknowledged, false},
		{"resolved_to_cancelled", StatusResolved, StatusCancelled, false},
		{"cancelled_is_terminal", StatusCancelled, StatusResolved, false},
		{"cancelled_to_acknowledged", StatusCancelled, StatusAcknowledged, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

type fakeDispatcher struct {
	mu            sync.Mutex
	alerts        []*Alert
	statusChanges []Status
	called        chan struct{}
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{called: make(chan struct{}, 16)}
}

func (f *fakeDispatcher) DispatchAlert(ctx context.Context, alert *Alert) {
	f.mu.Lock()
	f.alerts = append(f.alerts, alert)
	f.mu.Unlock()
	f.called <- struct{}{}
}

func (f *fakeDispatcher) DispatchStatusChange(ctx context.Context, alert *Alert, previous Status) {
	f.mu.Lock()
	f.statusChanges = append(f.statusChanges, previous)
	f.mu.Unlock()
	f.called <- struct{}{}
}

func (f *fakeDispatcher) waitForCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher was not called")
	}
}

type fakeStreamer struct {
	mu     sync.Mutex
	frames []any
}

func (f *fakeStreamer) FanoutAlert(ownerID string, alert any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, alert)
}

func (f *fakeStreamer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestService(dispatcher Dispatcher, streamer Streamer) (*Service, *InMemoryRepository) {
	repo := NewInMemoryRepository()
	return NewService(repo, dispatcher, streamer, nil, nil), repo
}

func mustCreate(t *testing.T, svc *Service, alert *Alert) *Alert {
	t.Helper()
	out, err := svc.Create(context.Background(), alert)
	if err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}
	return out
}

func TestServiceCreate(t *testing.T) {
	t.Run("defaults_and_dispatch", func(t *testing.T) {
		dispatcher := newFakeDispatcher()
		streamer := &fakeStreamer{}
		svc, _ := newTestService(dispatcher, streamer)

		out := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})
		if out.Status != StatusActive {
			t.Errorf("expected ACTIVE, got %s", out.Status)
		}
		if out.Priority != PriorityCritical {
			t.Errorf("expected default CRITICAL, got %s", out.Priority)
		}
		if out.Source != SourceSOSButton {
			t.Errorf("expected default SOS_BUTTON, got %s", out.Source)
		}
		if out.ID == "" {
			t.Error("expected an assigned id")
		}

		dispatcher.waitForCall(t)
		if streamer.count() != 1 {
			t.Errorf("expected 1 live-stream frame, got %d", streamer.count())
		}
	})

	t.Run("rejects_missing_owner", func(t *testing.T) {
		svc, _ := newTestService(nil, nil)
		if _, err := svc.Create(context.Background(), &Alert{}); !errors.Is(err, ErrMissingOwner) {
			t.Fatalf("expected ErrMissingOwner, got %v", err)
		}
	})

	t.Run("rejects_unknown_priority", func(t *testing.T) {
		svc, _ := newTestService(nil, nil)
		_, err := svc.Create(context.Background(), &Alert{OwnerID: "owner-1", Priority: "URGENT"})
		if !errors.Is(err, ErrInvalidPriority) {
			t.Fatalf("expected ErrInvalidPriority, got %v", err)
		}
	})
}

func TestServiceAcknowledge(t *testing.T) {
	t.Run("stamps_responder", func(t *testing.T) {
		svc, _ := newTestService(nil, nil)
		created := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})

		out, err := svc.Acknowledge(context.Background(), created.ID, "guardian-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Status != StatusAcknowledged {
			t.Errorf("expected ACKNOWLEDGED, got %s", out.Status)
		}
		if out.AcknowledgedBy == nil || *out.AcknowledgedBy != "guardian-1" {
			t.Errorf("expected acknowledged_by guardian-1, got %v", out.AcknowledgedBy)
		}
		if out.AcknowledgedAt == nil {
			t.Error("expected acknowledged_at to be stamped")
		}
	})

	t.Run("repeat_is_noop_without_restamping", func(t *testing.T) {
		svc, _ := newTestService(nil, nil)
		created := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})

		first, err := svc.Acknowledge(context.Background(), created.ID, "guardian-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := svc.Acknowledge(context.Background(), created.ID, "guardian-2")
		if err != nil {
			t.Fatalf("repeat acknowledge must not error: %v", err)
		}
		if *second.AcknowledgedBy != "guardian-1" {
			t.Errorf("repeat acknowledge must not re-stamp, got %s", *second.AcknowledgedBy)
		}
		if !second.AcknowledgedAt.Equal(*first.AcknowledgedAt) {
			t.Error("repeat acknowledge must not change the timestamp")
		}
	})

	t.Run("unknown_alert", func(t *testing.T) {
		svc, _ := newTestService(nil, nil)
		if _, err := svc.Acknowledge(context.Background(), "nope", "g"); !errors.Is(err, ErrAlertNotFound) {
			t.Fatalf("expected ErrAlertNotFound, got %v", err)
		}
	})
}

func TestServiceResolve(t *testing.T) {
	t.Run("stamps_response_time_once", func(t *testing.T) {
		svc, repo := newTestService(nil, nil)
		created := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})

		// Backdate creation so the response time is clearly positive.
		stored, _ := repo.GetByID(context.Background(), created.ID)
		stored.CreatedAt = time.Now().Add(-90 * time.Second)
		if err := repo.Update(context.Background(), stored); err != nil {
			t.Fatalf("failed to backdate: %v", err)
		}

		out, err := svc.Resolve(context.Background(), created.ID, "guardian-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Status != StatusResolved {
			t.Errorf("expected RESOLVED, got %s", out.Status)
		}
		if out.ResponseTimeSeconds == nil {
			t.Fatal("expected response time to be stamped")
		}
		if *out.ResponseTimeSeconds < 89 || *out.ResponseTimeSeconds > 120 {
			t.Errorf("expected ~90s response time, got %v", *out.ResponseTimeSeconds)
		}

		// Repeat resolve is a no-op and keeps the original figure.
		again, err := svc.Resolve(context.Background(), created.ID, "guardian-2")
		if err != nil {
			t.Fatalf("repeat resolve must not error: %v", err)
		}
		if *again.ResponseTimeSeconds != *out.ResponseTimeSeconds {
			t.Error("repeat resolve must not recompute response time")
		}
		if *again.ResolvedBy != "guardian-1" {
			t.Errorf("repeat resolve must not re-stamp, got %s", *again.ResolvedBy)
		}
	})

	t.Run("acknowledge_then_resolve", func(t *testing.T) {
		svc, _ := newTestService(nil, nil)
		created := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})

		if _, err := svc.Acknowledge(context.Background(), created.ID, "guardian-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, err := svc.Resolve(context.Background(), created.ID, "guardian-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Status != StatusResolved {
			t.Errorf("expected RESOLVED, got %s", out.Status)
		}
	})

	t.Run("resolve_after_cancel_is_illegal", func(t *testing.T) {
		svc, _ := newTestService(nil, nil)
		created := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})

		if _, err := svc.Cancel(context.Background(), created.ID, "owner-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := svc.Resolve(context.Background(), created.ID, "guardian-1")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestServiceCancel(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	created := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})

	out, err := svc.Cancel(context.Background(), created.ID, "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", out.Status)
	}
	if out.CancelledAt == nil {
		t.Error("expected cancelled_at to be stamped")
	}
	if out.CancelledBy == nil || *out.CancelledBy != "owner-1" {
		t.Error("expected cancelled_by to record the caller")
	}
	if out.ResponseTimeSeconds != nil {
		t.Error("cancelled alerts must not get a response time")
	}
}

func TestServiceConcurrentAcknowledge(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	created := mustCreate(t, svc, &Alert{OwnerID: "owner-1"})

	const responders = 16
	var wg sync.WaitGroup
	errs := make([]error, responders)
	for i := 0; i < responders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Acknowledge(context.Background(), created.ID, "guardian")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("responder %d got error: %v", i, err)
		}
	}
	final, _ := svc.Get(context.Background(), created.ID)
	if final.Status != StatusAcknowledged {
		t.Errorf("expected ACKNOWLEDGED, got %s", final.Status)
	}
}

type panickyDispatcher struct {
	called chan struct{}
}

func (p *panickyDispatcher) DispatchAlert(ctx context.Context, alert *Alert) {
	close(p.called)
	panic("twilio client exploded")
}

func (p *panickyDispatcher) DispatchStatusChange(ctx context.Context, alert *Alert, previous Status) {}

func TestServiceDispatchPanicIsContained(t *testing.T) {
	dispatcher := &panickyDispatcher{called: make(chan struct{})}
	svc, repo := newTestService(dispatcher, nil)

	out, err := svc.Create(context.Background(), &Alert{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("create must not fail when dispatch panics: %v", err)
	}

	select {
	case <-dispatcher.called:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher was not called")
	}

	if _, err := repo.GetByID(context.Background(), out.ID); err != nil {
		t.Errorf("alert must remain stored: %v", err)
	}
}
