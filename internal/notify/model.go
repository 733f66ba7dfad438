// Package notify fans SOS alerts out to emergency contacts and guardians
// over SMS, email, voice call, and push. Every delivery attempt leaves a
// Notification record behind, so the audit trail shows exactly who was
// reached and who was not.
package notify

import (
	"errors"
	"time"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelCall  Channel = "CALL"
	ChannelPush  Channel = "PUSH"
)

// Status is the delivery state of one notification attempt. Every record
// starts PENDING and is resolved to SENT or FAILED; DELIVERED is reserved
// for provider delivery receipts.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// Notification errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// Notification is the audit record of one delivery attempt on one channel
// to one recipient.
type Notification struct {
	ID      string  `json:"id"`
	AlertID string  `json:"alert_id"`
	Channel Channel `json:"channel"`
	Status  Status  `json:"status"`

	// Recipient is the channel address: a phone number, email address, or
	// push token. RecipientName is who it belongs to.
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipient_name,omitempty"`

	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	// ExternalID is the provider's identifier for the message (Twilio SID,
	// FCM message id). Meta carries any further provider-specific fields.
	ExternalID *string           `json:"external_id,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`

	FailureReason *string `json:"failure_reason,omitempty"`

	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DispatchReport summarizes one dispatch run over all recipients and
// channels.
type DispatchReport struct {
	AlertID   string          `json:"alert_id"`
	Attempted int             `json:"attempted"`
	Sent      int             `json:"sent"`
	Failed    int             `json:"failed"`
	ByChannel map[Channel]int `json:"by_channel"`
	Duration  time.Duration   `json:"duration"`
}
