package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for notification audit persistence.
type Repository interface {
	// Insert stores a new notification record, assigning an id if absent.
	Insert(ctx context.Context, n *Notification) error

	// Update rewrites a stored notification record.
	Update(ctx context.Context, n *Notification) error

	// GetByID retrieves a notification by its id.
	GetByID(ctx context.Context, id string) (*Notification, error)

	// ListByAlert returns all delivery records for an alert, oldest first.
	ListByAlert(ctx context.Context, alertID string) ([]*Notification, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Notification
}

// NewInMemoryRepository creates a new in-memory notification repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*Notification)}
}

// Insert stores a new notification record, assigning an id if absent.
func (r *InMemoryRepository) Insert(ctx context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	r.records[n.ID] = copyNotification(n)
	return nil
}

// Update rewrites a stored notification record.
func (r *InMemoryRepository) Update(ctx context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[n.ID]; !ok {
		return ErrNotificationNotFound
	}
	n.UpdatedAt = time.Now()
	r.records[n.ID] = copyNotification(n)
	return nil
}

// GetByID retrieves a notification by its id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.records[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return copyNotification(n), nil
}

// ListByAlert returns all delivery records for an alert, oldest first.
func (r *InMemoryRepository) ListByAlert(ctx context.Context, alertID string) ([]*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Notification
	for _, n := range r.records {
		if n.AlertID == alertID {
			out = append(out, copyNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyNotification(n *Notification) *Notification {
	copied := *n
	if n.Meta != nil {
		copied.Meta = make(map[string]string, len(n.Meta))
		for k, v := range n.Meta {
			copied.Meta[k] = v
		}
	}
	return &copied
}

// PostgresRepository implements Repository using PostgreSQL. Meta is stored
// as a JSONB column.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed notification repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const notificationColumns = `id, alert_id, channel, status, recipient, recipient_name,
	subject, body, external_id, meta, failure_reason, sent_at, created_at, updated_at`

// Insert stores a new notification record, assigning an id if absent.
func (r *PostgresRepository) Insert(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	meta, err := marshalMeta(n.Meta)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		n.ID, n.AlertID, string(n.Channel), string(n.Status),
		n.Recipient, n.RecipientName, n.Subject, n.Body,
		n.ExternalID, meta, n.FailureReason, n.SentAt, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Update rewrites a stored notification record.
func (r *PostgresRepository) Update(ctx context.Context, n *Notification) error {
	n.UpdatedAt = time.Now()

	meta, err := marshalMeta(n.Meta)
	if err != nil {
		return err
	}

	const query = `
		UPDATE notifications SET
			status = $2, external_id = $3, meta = $4,
			failure_reason = $5, sent_at = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		n.ID, string(n.Status), n.ExternalID, meta,
		n.FailureReason, n.SentAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// GetByID retrieves a notification by its id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Notification, error) {
	const query = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListByAlert returns all delivery records for an alert, oldest first.
func (r *PostgresRepository) ListByAlert(ctx context.Context, alertID string) ([]*Notification, error) {
	const query = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE alert_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func marshalMeta(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification meta: %w", err)
	}
	return data, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	var channel, status string
	var meta []byte
	err := row.Scan(
		&n.ID, &n.AlertID, &channel, &status,
		&n.Recipient, &n.RecipientName, &n.Subject, &n.Body,
		&n.ExternalID, &meta, &n.FailureReason, &n.SentAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Channel = Channel(channel)
	n.Status = Status(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification meta: %w", err)
		}
	}
	return &n, nil
}
