// Package contact manages the emergency contacts an alert fans out to.
// Each contact opts into channels individually; a contact with no channel
// enabled is useless and rejected at validation.
package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra-safety/sentra/internal/validate"
)

// Contact errors.
var (
	ErrContactNotFound  = errors.New("emergency contact not found")
	ErrMissingOwner     = errors.New("owner id is required")
	ErrMissingName      = errors.New("contact name is required")
	ErrNoChannels       = errors.New("at least one notification channel must be enabled")
	ErrMissingPhone     = errors.New("phone number is required for SMS or call notifications")
	ErrMissingEmail     = errors.New("email address is required for email notifications")
	ErrMissingPushToken = errors.New("push token is required for push notifications")
	ErrInvalidPhone     = errors.New("phone number must be in E.164 format, like +919876543210")
	ErrInvalidEmail     = errors.New("email address is malformed")
)

// Contact is one emergency contact of a device owner.
type Contact struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`

	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
	PushToken *string `json:"push_token,omitempty"`

	Relationship string `json:"relationship,omitempty"`

	// IsPrimary contacts are listed and dispatched first.
	IsPrimary bool `json:"is_primary"`

	NotifySMS   bool `json:"notify_sms"`
	NotifyEmail bool `json:"notify_email"`
	NotifyCall  bool `json:"notify_call"`
	NotifyPush  bool `json:"notify_push"`

	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the contact names at least one channel and carries
// the address each enabled channel needs. Phone numbers and email addresses
// present on the contact are normalized in place.
func (c *Contact) Validate() error {
	if c.OwnerID == "" {
		return ErrMissingOwner
	}
	if c.Name == "" {
		return ErrMissingName
	}
	if !c.NotifySMS && !c.NotifyEmail && !c.NotifyCall && !c.NotifyPush {
		return ErrNoChannels
	}
	if (c.NotifySMS || c.NotifyCall) && (c.Phone == nil || *c.Phone == "") {
		return ErrMissingPhone
	}
	if c.NotifyEmail && (c.Email == nil || *c.Email == "") {
		return ErrMissingEmail
	}
	if c.NotifyPush && (c.PushToken == nil || *c.PushToken == "") {
		return ErrMissingPushToken
	}
	if c.Phone != nil && *c.Phone != "" {
		normalized, err := validate.Phone(*c.Phone)
		if err != nil {
			return ErrInvalidPhone
		}
		*c.Phone = normalized
	}
	if c.Email != nil && *c.Email != "" {
		normalized, err := validate.Email(*c.Email)
		if err != nil {
			return ErrInvalidEmail
		}
		*c.Email = normalized
	}
	return nil
}

// Repository defines the interface for emergency contact persistence.
type Repository interface {
	// Insert stores a new contact, assigning an id if absent.
	Insert(ctx context.Context, contact *Contact) error

	// GetByID retrieves a contact by its id.
	GetByID(ctx context.Context, id string) (*Contact, error)

	// ListByOwner returns an owner's contacts, primary first, then by name.
	ListByOwner(ctx context.Context, ownerID string) ([]*Contact, error)

	// ListActiveByOwner returns the owner's active contacts in dispatch
	// order: primary first, then by name.
	ListActiveByOwner(ctx context.Context, ownerID string) ([]*Contact, error)

	// Delete removes a contact.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	contacts map[string]*Contact
}

// NewInMemoryRepository creates a new in-memory contact repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{contacts: make(map[string]*Contact)}
}

// Insert stores a new contact, assigning an id if absent.
func (r *InMemoryRepository) Insert(ctx context.Context, contact *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	now := time.Now()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	copied := *contact
	r.contacts[contact.ID] = &copied
	return nil
}

// GetByID retrieves a contact by its id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contact, ok := r.contacts[id]
	if !ok {
		return nil, ErrContactNotFound
	}
	copied := *contact
	return &copied, nil
}

// ListByOwner returns an owner's contacts, primary first, then by name.
func (r *InMemoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Contact, error) {
	return r.list(ownerID, false), nil
}

// ListActiveByOwner returns the owner's active contacts in dispatch order.
func (r *InMemoryRepository) ListActiveByOwner(ctx context.Context, ownerID string) ([]*Contact, error) {
	return r.list(ownerID, true), nil
}

func (r *InMemoryRepository) list(ownerID string, activeOnly bool) []*Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Contact
	for _, contact := range r.contacts {
		if contact.OwnerID != ownerID {
			continue
		}
		if activeOnly && !contact.Active {
			continue
		}
		copied := *contact
		out = append(out, &copied)
	}
	sortContacts(out)
	return out
}

// Delete removes a contact.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contacts[id]; !ok {
		return ErrContactNotFound
	}
	delete(r.contacts, id)
	return nil
}

func sortContacts(contacts []*Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].IsPrimary != contacts[j].IsPrimary {
			return contacts[i].IsPrimary
		}
		return contacts[i].Name < contacts[j].Name
	})
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed contact repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const contactColumns = `id, owner_id, name, phone, email, push_token, relationship,
	is_primary, notify_sms, notify_email, notify_call, notify_push, active,
	created_at, updated_at`

// Insert stores a new contact, assigning an id if absent.
func (r *PostgresRepository) Insert(ctx context.Context, contact *Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	now := time.Now()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	const query = `
		INSERT INTO emergency_contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		contact.ID, contact.OwnerID, contact.Name,
		contact.Phone, contact.Email, contact.PushToken, contact.Relationship,
		contact.IsPrimary, contact.NotifySMS, contact.NotifyEmail,
		contact.NotifyCall, contact.NotifyPush, contact.Active,
		contact.CreatedAt, contact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert emergency contact: %w", err)
	}
	return nil
}

// GetByID retrieves a contact by its id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Contact, error) {
	const query = `SELECT ` + contactColumns + ` FROM emergency_contacts WHERE id = $1`
	contact, err := scanContact(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get emergency contact: %w", err)
	}
	return contact, nil
}

// ListByOwner returns an owner's contacts, primary first, then by name.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Contact, error) {
	const query = `SELECT ` + contactColumns + ` FROM emergency_contacts
		WHERE owner_id = $1 ORDER BY is_primary DESC, name ASC`
	return r.queryList(ctx, query, ownerID)
}

// ListActiveByOwner returns the owner's active contacts in dispatch order.
func (r *PostgresRepository) ListActiveByOwner(ctx context.Context, ownerID string) ([]*Contact, error) {
	const query = `SELECT ` + contactColumns + ` FROM emergency_contacts
		WHERE owner_id = $1 AND active = true ORDER BY is_primary DESC, name ASC`
	return r.queryList(ctx, query, ownerID)
}

func (r *PostgresRepository) queryList(ctx context.Context, query string, args ...any) ([]*Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency contacts: %w", err)
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emergency contact: %w", err)
		}
		out = append(out, contact)
	}
	return out, rows.Err()
}

// Delete removes a contact.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM emergency_contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete emergency contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrContactNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name,
		&c.Phone, &c.Email, &c.PushToken, &c.Relationship,
		&c.IsPrimary, &c.NotifySMS, &c.NotifyEmail,
		&c.NotifyCall, &c.NotifyPush, &c.Active,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
