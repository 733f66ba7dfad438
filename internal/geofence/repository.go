package geofence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for geofence persistence.
type Repository interface {
	// Insert stores a new geofence, assigning an id if absent.
	Insert(ctx context.Context, fence *Geofence) error

	// GetByID retrieves a geofence by its id.
	GetByID(ctx context.Context, id string) (*Geofence, error)

	// ListByOwner returns all geofences of an owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Geofence, error)

	// ListActiveByOwner returns the owner's active geofences, the set the
	// evaluator checks every fix against.
	ListActiveByOwner(ctx context.Context, ownerID string) ([]*Geofence, error)

	// Delete removes a geofence.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	fences map[string]*Geofence
}

// NewInMemoryRepository creates a new in-memory geofence repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{fences: make(map[string]*Geofence)}
}

// Insert stores a new geofence, assigning an id if absent.
func (r *InMemoryRepository) Insert(ctx context.Context, fence *Geofence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fence.ID == "" {
		fence.ID = uuid.New().String()
	}
	now := time.Now()
	if fence.CreatedAt.IsZero() {
		fence.CreatedAt = now
	}
	fence.UpdatedAt = now

	copied := *fence
	r.fences[fence.ID] = &copied
	return nil
}

// GetByID retrieves a geofence by its id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fence, ok := r.fences[id]
	if !ok {
		return nil, ErrGeofenceNotFound
	}
	copied := *fence
	return &copied, nil
}

// ListByOwner returns all geofences of an owner, newest first.
func (r *InMemoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Geofence, error) {
	return r.list(ownerID, false)
}

// ListActiveByOwner returns the owner's active geofences.
func (r *InMemoryRepository) ListActiveByOwner(ctx context.Context, ownerID string) ([]*Geofence, error) {
	return r.list(ownerID, true)
}

func (r *InMemoryRepository) list(ownerID string, activeOnly bool) ([]*Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Geofence
	for _, fence := range r.fences {
		if fence.OwnerID != ownerID {
			continue
		}
		if activeOnly && !fence.Active {
			continue
		}
		copied := *fence
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a geofence.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fences[id]; !ok {
		return ErrGeofenceNotFound
	}
	delete(r.fences, id)
	return nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed geofence repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const geofenceColumns = `id, owner_id, name, kind, center_lat, center_lng, radius_m,
	active, notify_on_entry, notify_on_exit, created_at, updated_at`

// Insert stores a new geofence, assigning an id if absent.
func (r *PostgresRepository) Insert(ctx context.Context, fence *Geofence) error {
	if fence.ID == "" {
		fence.ID = uuid.New().String()
	}
	now := time.Now()
	if fence.CreatedAt.IsZero() {
		fence.CreatedAt = now
	}
	fence.UpdatedAt = now

	const query = `
		INSERT INTO geofences (` + geofenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		fence.ID, fence.OwnerID, fence.Name, string(fence.Kind),
		fence.CenterLat, fence.CenterLng, fence.RadiusM,
		fence.Active, fence.NotifyOnEntry, fence.NotifyOnExit,
		fence.CreatedAt, fence.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert geofence: %w", err)
	}
	return nil
}

// GetByID retrieves a geofence by its id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Geofence, error) {
	const query = `SELECT ` + geofenceColumns + ` FROM geofences WHERE id = $1`
	fence, err := scanGeofence(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrGeofenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get geofence: %w", err)
	}
	return fence, nil
}

// ListByOwner returns all geofences of an owner, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Geofence, error) {
	const query = `SELECT ` + geofenceColumns + ` FROM geofences
		WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.queryList(ctx, query, ownerID)
}

// ListActiveByOwner returns the owner's active geofences.
func (r *PostgresRepository) ListActiveByOwner(ctx context.Context, ownerID string) ([]*Geofence, error) {
	const query = `SELECT ` + geofenceColumns + ` FROM geofences
		WHERE owner_id = $1 AND active = true ORDER BY created_at DESC`
	return r.queryList(ctx, query, ownerID)
}

func (r *PostgresRepository) queryList(ctx context.Context, query string, args ...any) ([]*Geofence, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}
	defer rows.Close()

	var out []*Geofence
	for rows.Next() {
		fence, err := scanGeofence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		out = append(out, fence)
	}
	return out, rows.Err()
}

// Delete removes a geofence.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM geofences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete geofence: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrGeofenceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeofence(row rowScanner) (*Geofence, error) {
	var g Geofence
	var kind string
	err := row.Scan(
		&g.ID, &g.OwnerID, &g.Name, &kind,
		&g.CenterLat, &g.CenterLng, &g.RadiusM,
		&g.Active, &g.NotifyOnEntry, &g.NotifyOnExit,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Kind = Kind(kind)
	return &g, nil
}
