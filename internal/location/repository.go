package location

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SampleRepository defines the interface for location sample persistence.
// Samples are append-only; there is no update or delete.
type SampleRepository interface {
	// Insert stores a new sample, assigning an id if absent.
	Insert(ctx context.Context, sample *Sample) error

	// GetByID retrieves a sample by its id.
	GetByID(ctx context.Context, id string) (*Sample, error)

	// ListByOwner returns the most recent samples for an owner,
	// newest first, up to limit.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Sample, error)
}

// InMemorySampleRepository is an in-memory implementation of SampleRepository.
// Thread-safe via RWMutex.
type InMemorySampleRepository struct {
	mu      sync.RWMutex
	samples map[string]*Sample
	byOwner map[string][]string
}

// NewInMemorySampleRepository creates a new in-memory sample repository.
func NewInMemorySampleRepository() *InMemorySampleRepository {
	return &InMemorySampleRepository{
		samples: make(map[string]*Sample),
		byOwner: make(map[string][]string),
	}
}

// Insert stores a new sample, assigning an id if absent.
func (r *InMemorySampleRepository) Insert(ctx context.Context, sample *Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now()
	}

	copied := *sample
	r.samples[sample.ID] = &copied
	r.byOwner[sample.OwnerID] = append(r.byOwner[sample.OwnerID], sample.ID)
	return nil
}

// GetByID retrieves a sample by its id.
func (r *InMemorySampleRepository) GetByID(ctx context.Context, id string) (*Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sample, ok := r.samples[id]
	if !ok {
		return nil, ErrSampleNotFound
	}
	copied := *sample
	return &copied, nil
}

// ListByOwner returns the most recent samples for an owner, newest first.
func (r *InMemorySampleRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOwner[ownerID]
	out := make([]*Sample, 0, len(ids))
	for _, id := range ids {
		copied := *r.samples[id]
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PostgresSampleRepository implements SampleRepository using PostgreSQL.
type PostgresSampleRepository struct {
	db *sql.DB
}

// NewPostgresSampleRepository creates a new Postgres-backed sample repository.
func NewPostgresSampleRepository(db *sql.DB) *PostgresSampleRepository {
	return &PostgresSampleRepository{db: db}
}

// Insert stores a new sample, assigning an id if absent.
func (r *PostgresSampleRepository) Insert(ctx context.Context, sample *Sample) error {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO location_samples (
			id, owner_id, device_id, latitude, longitude, altitude, accuracy,
			speed, heading, address, is_sos, is_home, is_work, out_of_order,
			captured_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		sample.ID, sample.OwnerID, sample.DeviceID,
		sample.Latitude, sample.Longitude, sample.Altitude, sample.Accuracy,
		sample.Speed, sample.Heading, sample.Address,
		sample.IsSOS, sample.IsHome, sample.IsWork, sample.OutOfOrder,
		sample.CapturedAt, sample.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert location sample: %w", err)
	}
	return nil
}

// GetByID retrieves a sample by its id.
func (r *PostgresSampleRepository) GetByID(ctx context.Context, id string) (*Sample, error) {
	const query = `
		SELECT id, owner_id, device_id, latitude, longitude, altitude, accuracy,
			speed, heading, address, is_sos, is_home, is_work, out_of_order,
			captured_at, created_at
		FROM location_samples WHERE id = $1
	`
	var s Sample
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.OwnerID, &s.DeviceID, &s.Latitude, &s.Longitude, &s.Altitude,
		&s.Accuracy, &s.Speed, &s.Heading, &s.Address,
		&s.IsSOS, &s.IsHome, &s.IsWork, &s.OutOfOrder,
		&s.CapturedAt, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSampleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location sample: %w", err)
	}
	return &s, nil
}

// ListByOwner returns the most recent samples for an owner, newest first.
func (r *PostgresSampleRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Sample, error) {
	const query = `
		SELECT id, owner_id, device_id, latitude, longitude, altitude, accuracy,
			speed, heading, address, is_sos, is_home, is_work, out_of_order,
			captured_at, created_at
		FROM location_samples
		WHERE owner_id = $1
		ORDER BY captured_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list location samples: %w", err)
	}
	defer rows.Close()

	var out []*Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(
			&s.ID, &s.OwnerID, &s.DeviceID, &s.Latitude, &s.Longitude, &s.Altitude,
			&s.Accuracy, &s.Speed, &s.Heading, &s.Address,
			&s.IsSOS, &s.IsHome, &s.IsWork, &s.OutOfOrder,
			&s.CapturedAt, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan location sample: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
