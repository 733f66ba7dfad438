package notify

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// TemplateType selects which message template a dispatch uses.
type TemplateType string

const (
	TemplateSOSAlert      TemplateType = "SOS_ALERT"
	TemplateSOSResolved   TemplateType = "SOS_RESOLVED"
	TemplateSOSCancelled  TemplateType = "SOS_CANCELLED"
	TemplateGeofenceEntry TemplateType = "GEOFENCE_ENTRY"
	TemplateGeofenceExit  TemplateType = "GEOFENCE_EXIT"
)

// Template errors.
var (
	ErrTemplateNotFound      = errors.New("message template not found")
	ErrUnresolvedPlaceholder = errors.New("unresolved template placeholder")
)

// Template is a message definition with {placeholder} slots in both the
// subject and the body.
type Template struct {
	Type    TemplateType `json:"type"`
	Subject string       `json:"subject"`
	Body    string       `json:"body"`
}

// Render substitutes every {placeholder} from the context. A placeholder
// with no context value is an error, not silently left in place: a contact
// must never receive a message with a literal "{latitude}" in it.
func (t *Template) Render(ctx map[string]string) (subject, body string, err error) {
	subject, err = renderText(t.Subject, ctx)
	if err != nil {
		return "", "", err
	}
	body, err = renderText(t.Body, ctx)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func renderText(text string, ctx map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			b.WriteString(text)
			return b.String(), nil
		}
		closing := strings.IndexByte(text[open:], '}')
		if closing < 0 {
			b.WriteString(text)
			return b.String(), nil
		}
		closing += open

		b.WriteString(text[:open])
		key := text[open+1 : closing]
		value, ok := ctx[key]
		if !ok {
			return "", fmt.Errorf("%w: {%s}", ErrUnresolvedPlaceholder, key)
		}
		b.WriteString(value)
		text = text[closing+1:]
	}
}

// TemplateSet holds the active template per type. Safe for concurrent use;
// Set replaces a template at runtime.
type TemplateSet struct {
	mu        sync.RWMutex
	templates map[TemplateType]*Template
}

// NewTemplateSet creates a set seeded with the given templates.
func NewTemplateSet(templates ...*Template) *TemplateSet {
	s := &TemplateSet{templates: make(map[TemplateType]*Template)}
	for _, t := range templates {
		s.templates[t.Type] = t
	}
	return s
}

// Get returns the template for a type.
func (s *TemplateSet) Get(tt TemplateType) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[tt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, tt)
	}
	copied := *t
	return &copied, nil
}

// Set installs or replaces the template for a type.
func (s *TemplateSet) Set(t *Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *t
	s.templates[t.Type] = &copied
}

// DefaultTemplates returns the built-in message set.
func DefaultTemplates() *TemplateSet {
	return NewTemplateSet(
		&Template{
			Type:    TemplateSOSAlert,
			Subject: "EMERGENCY: SOS alert from {owner_name}",
			Body:    "{owner_name} has triggered an SOS alert at {timestamp}. Location: {location}. Message: {message}. Priority: {priority}.",
		},
		&Template{
			Type:    TemplateSOSResolved,
			Subject: "Resolved: SOS alert from {owner_name}",
			Body:    "The SOS alert from {owner_name} was resolved at {timestamp}. No further action is needed.",
		},
		&Template{
			Type:    TemplateSOSCancelled,
			Subject: "Cancelled: SOS alert from {owner_name}",
			Body:    "The SOS alert from {owner_name} was cancelled at {timestamp}. It was a false trigger.",
		},
		&Template{
			Type:    TemplateGeofenceEntry,
			Subject: "ALERT: {owner_name} entered a restricted zone",
			Body:    "{owner_name} entered a restricted zone at {timestamp}. Location: {location}. Priority: {priority}.",
		},
		&Template{
			Type:    TemplateGeofenceExit,
			Subject: "ALERT: {owner_name} left a safe zone",
			Body:    "{owner_name} left a safe zone at {timestamp}. Location: {location}. Priority: {priority}.",
		},
	)
}
