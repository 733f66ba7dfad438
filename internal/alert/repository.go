package alert

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra-safety/sentra/internal/tracing"
)

// Repository defines the interface for alert persistence.
type Repository interface {
	// Insert stores a new alert, assigning an id if absent.
	Insert(ctx context.Context, alert *Alert) error

	// GetByID retrieves an alert by its id.
	GetByID(ctx context.Context, id string) (*Alert, error)

	// Update rewrites a stored alert.
	Update(ctx context.Context, alert *Alert) error

	// ListByOwner returns an owner's alerts, newest first, up to limit.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Alert, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{alerts: make(map[string]*Alert)}
}

// Insert stores a new alert, assigning an id if absent.
func (r *InMemoryRepository) Insert(ctx context.Context, alert *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	copied := *alert
	r.alerts[alert.ID] = &copied
	return nil
}

// GetByID retrieves an alert by its id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	copied := *alert
	return &copied, nil
}

// Update rewrites a stored alert.
func (r *InMemoryRepository) Update(ctx context.Context, alert *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[alert.ID]; !ok {
		return ErrAlertNotFound
	}
	alert.UpdatedAt = time.Now()
	copied := *alert
	r.alerts[alert.ID] = &copied
	return nil
}

// ListByOwner returns an owner's alerts, newest first.
func (r *InMemoryRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, alert := range r.alerts {
		if alert.OwnerID != ownerID {
			continue
		}
		copied := *alert
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed alert repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const alertColumns = `id, owner_id, status, priority, source, message,
	latitude, longitude, address,
	acknowledged_by, acknowledged_at, resolved_by, resolved_at, cancelled_by, cancelled_at,
	response_time_seconds, created_at, updated_at`

// Insert stores a new alert, assigning an id if absent.
func (r *PostgresRepository) Insert(ctx context.Context, alert *Alert) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "sos_alerts", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	const query = `
		INSERT INTO sos_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.db.ExecContext(ctx, query,
		alert.ID, alert.OwnerID, string(alert.Status), string(alert.Priority),
		string(alert.Source), alert.Message,
		alert.Latitude, alert.Longitude, alert.Address,
		alert.AcknowledgedBy, alert.AcknowledgedAt,
		alert.ResolvedBy, alert.ResolvedAt, alert.CancelledBy, alert.CancelledAt,
		alert.ResponseTimeSeconds, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by its id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	const query = `SELECT ` + alertColumns + ` FROM sos_alerts WHERE id = $1`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// Update rewrites a stored alert.
func (r *PostgresRepository) Update(ctx context.Context, alert *Alert) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "sos_alerts", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	alert.UpdatedAt = time.Now()

	const query = `
		UPDATE sos_alerts SET
			status = $2, priority = $3, message = $4,
			acknowledged_by = $5, acknowledged_at = $6,
			resolved_by = $7, resolved_at = $8, cancelled_by = $9, cancelled_at = $10,
			response_time_seconds = $11, updated_at = $12
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		alert.ID, string(alert.Status), string(alert.Priority), alert.Message,
		alert.AcknowledgedBy, alert.AcknowledgedAt,
		alert.ResolvedBy, alert.ResolvedAt, alert.CancelledBy, alert.CancelledAt,
		alert.ResponseTimeSeconds, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ListByOwner returns an owner's alerts, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Alert, error) {
	const query = `SELECT ` + alertColumns + ` FROM sos_alerts
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var status, priority, source string
	err := row.Scan(
		&a.ID, &a.OwnerID, &status, &priority, &source, &a.Message,
		&a.Latitude, &a.Longitude, &a.Address,
		&a.AcknowledgedBy, &a.AcknowledgedAt,
		&a.ResolvedBy, &a.ResolvedAt, &a.CancelledBy, &a.CancelledAt,
		&a.ResponseTimeSeconds, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Priority = Priority(priority)
	a.Source = Source(source)
	return &a, nil
}
