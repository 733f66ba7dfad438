// Package guardian manages guardian subscriptions: which users watch over a
// device owner and which event classes they want pushed to them.
package guardian

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Subscription errors.
var (
	ErrSubscriptionNotFound  = errors.New("guardian subscription not found")
	ErrDuplicateSubscription = errors.New("guardian is already subscribed to this owner")
	ErrSelfSubscription      = errors.New("a user cannot be their own guardian")
	ErrMissingGuardian       = errors.New("guardian id is required")
	ErrMissingOwner          = errors.New("owner id is required")
)

// Subscription links a guardian to the device owner they watch. At most one
// subscription exists per guardian/owner pair.
type Subscription struct {
	ID         string `json:"id"`
	GuardianID string `json:"guardian_id"`
	OwnerID    string `json:"owner_id"`

	Relationship string `json:"relationship,omitempty"`

	NotifySOS      bool `json:"notify_sos"`
	NotifyLocation bool `json:"notify_location"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks required fields.
func (s *Subscription) Validate() error {
	if s.GuardianID == "" {
		return ErrMissingGuardian
	}
	if s.OwnerID == "" {
		return ErrMissingOwner
	}
	if s.GuardianID == s.OwnerID {
		return ErrSelfSubscription
	}
	return nil
}

// Repository defines the interface for guardian subscription persistence.
type Repository interface {
	// Insert stores a new subscription. Returns ErrDuplicateSubscription
	// if the guardian already watches this owner.
	Insert(ctx context.Context, sub *Subscription) error

	// Get retrieves the subscription of a guardian for an owner.
	Get(ctx context.Context, guardianID, ownerID string) (*Subscription, error)

	// ListByOwner returns everyone watching an owner, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Subscription, error)

	// ListByGuardian returns every owner a guardian watches.
	ListByGuardian(ctx context.Context, guardianID string) ([]*Subscription, error)

	// Delete removes the subscription of a guardian for an owner.
	Delete(ctx context.Context, guardianID, ownerID string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // guardianID|ownerID
}

// NewInMemoryRepository creates a new in-memory subscription repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{subs: make(map[string]*Subscription)}
}

func pairKey(guardianID, ownerID string) string {
	return guardianID + "|" + ownerID
}

// Insert stores a new subscription.
func (r *InMemoryRepository) Insert(ctx context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(sub.GuardianID, sub.OwnerID)
	if _, exists := r.subs[key]; exists {
		return ErrDuplicateSubscription
	}

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	copied := *sub
	r.subs[key] = &copied
	return nil
}

// Get retrieves the subscription of a guardian for an owner.
func (r *InMemoryRepository) Get(ctx context.Context, guardianID, ownerID string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[pairKey(guardianID, ownerID)]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

// ListByOwner returns everyone watching an owner, oldest first.
func (r *InMemoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Subscription, error) {
	return r.list(func(s *Subscription) bool { return s.OwnerID == ownerID }), nil
}

// ListByGuardian returns every owner a guardian watches.
func (r *InMemoryRepository) ListByGuardian(ctx context.Context, guardianID string) ([]*Subscription, error) {
	return r.list(func(s *Subscription) bool { return s.GuardianID == guardianID }), nil
}

func (r *InMemoryRepository) list(match func(*Subscription) bool) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscription
	for _, sub := range r.subs {
		if match(sub) {
			copied := *sub
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Delete removes the subscription of a guardian for an owner.
func (r *InMemoryRepository) Delete(ctx context.Context, guardianID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(guardianID, ownerID)
	if _, ok := r.subs[key]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(r.subs, key)
	return nil
}

// PostgresRepository implements Repository using PostgreSQL. The table
// carries a unique constraint on (guardian_id, owner_id).
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed subscription repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const subscriptionColumns = `id, guardian_id, owner_id, relationship,
	notify_sos, notify_location, created_at`

// Insert stores a new subscription.
func (r *PostgresRepository) Insert(ctx context.Context, sub *Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO guardian_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.ID, sub.GuardianID, sub.OwnerID, sub.Relationship,
		sub.NotifySOS, sub.NotifyLocation, sub.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateSubscription
		}
		return fmt.Errorf("failed to insert guardian subscription: %w", err)
	}
	return nil
}

// Get retrieves the subscription of a guardian for an owner.
func (r *PostgresRepository) Get(ctx context.Context, guardianID, ownerID string) (*Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM guardian_subscriptions
		WHERE guardian_id = $1 AND owner_id = $2`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, guardianID, ownerID))
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guardian subscription: %w", err)
	}
	return sub, nil
}

// ListByOwner returns everyone watching an owner, oldest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM guardian_subscriptions
		WHERE owner_id = $1 ORDER BY created_at ASC`
	return r.queryList(ctx, query, ownerID)
}

// ListByGuardian returns every owner a guardian watches.
func (r *PostgresRepository) ListByGuardian(ctx context.Context, guardianID string) ([]*Subscription, error) {
	const query = `SELECT ` + subscriptionColumns + ` FROM guardian_subscriptions
		WHERE guardian_id = $1 ORDER BY created_at ASC`
	return r.queryList(ctx, query, guardianID)
}

func (r *PostgresRepository) queryList(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list guardian subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guardian subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Delete removes the subscription of a guardian for an owner.
func (r *PostgresRepository) Delete(ctx context.Context, guardianID, ownerID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM guardian_subscriptions WHERE guardian_id = $1 AND owner_id = $2`,
		guardianID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete guardian subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.GuardianID, &s.OwnerID, &s.Relationship,
		&s.NotifySOS, &s.NotifyLocation, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
