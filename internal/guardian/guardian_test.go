package guardian

import (
	"context"
	"errors"
	"testing"
)

func TestSubscriptionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sub     Subscription
		wantErr error
	}{
		{
			name: "valid",
			sub:  Subscription{GuardianID: "guardian-1", OwnerID: "owner-1", NotifySOS: true},
		},
		{
			name:    "missing_guardian",
			sub:     Subscription{OwnerID: "owner-1"},
			wantErr: ErrMissingGuardian,
		},
		{
			name:    "missing_owner",
			sub:     Subscription{GuardianID: "guardian-1"},
			wantErr: ErrMissingOwner,
		},
		{
			name:    "self_subscription",
			sub:     Subscription{GuardianID: "user-1", OwnerID: "user-1"},
			wantErr: ErrSelfSubscription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
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

func TestInsertRejectsDuplicatePair(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first := &Subscription{GuardianID: "guardian-1", OwnerID: "owner-1", NotifySOS: true}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := &Subscription{GuardianID: "guardian-1", OwnerID: "owner-1", NotifyLocation: true}
	if err := repo.Insert(ctx, dup); !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}

	// Same guardian, different owner is fine.
	other := &Subscription{GuardianID: "guardian-1", OwnerID: "owner-2", NotifySOS: true}
	if err := repo.Insert(ctx, other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListByOwnerAndGuardian(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	seed := []*Subscription{
		{GuardianID: "guardian-1", OwnerID: "owner-1", NotifySOS: true},
		{GuardianID: "guardian-2", OwnerID: "owner-1", NotifyLocation: true},
		{GuardianID: "guardian-1", OwnerID: "owner-2", NotifySOS: true},
	}
	for _, s := range seed {
		if err := repo.Insert(ctx, s); err != nil {
			t.Fatalf("failed to seed subscription: %v", err)
		}
	}

	watchers, err := repo.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(watchers) != 2 {
		t.Errorf("expected 2 watchers of owner-1, got %d", len(watchers))
	}

	watched, err := repo.ListByGuardian(ctx, "guardian-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(watched) != 2 {
		t.Errorf("expected guardian-1 to watch 2 owners, got %d", len(watched))
	}
}

func TestDeleteSubscription(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	sub := &Subscription{GuardianID: "guardian-1", OwnerID: "owner-1", NotifySOS: true}
	if err := repo.Insert(ctx, sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.Delete(ctx, "guardian-1", "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Get(ctx, "guardian-1", "owner-1"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "guardian-1", "owner-1"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound on double delete, got %v", err)
	}
}
