package notify

import (
	"errors"
	"strings"
	"testing"
)

func TestTemplateRender(t *testing.T) {
	tests := []struct {
		name     string
		template Template
		ctx      map[string]string
		wantSubj string
		wantBody string
		wantErr  error
	}{
		{
			name:     "substitutes_placeholders",
			template: Template{Subject: "SOS from {owner_name}", Body: "{owner_name} at {location}"},
			ctx:      map[string]string{"owner_name": "Asha", "location": "Connaught Place"},
			wantSubj: "SOS from Asha",
			wantBody: "Asha at Connaught Place",
		},
		{
			name:     "no_placeholders",
			template: Template{Subject: "Hello", Body: "Plain text."},
			ctx:      map[string]string{},
			wantSubj: "Hello",
			wantBody: "Plain text.",
		},
		{
			name:     "repeated_placeholder",
			template: Template{Subject: "{name}", Body: "{name} and {name} again"},
			ctx:      map[string]string{"name": "Ravi"},
			wantSubj: "Ravi",
			wantBody: "Ravi and Ravi again",
		},
		{
			name:     "unresolved_placeholder_in_body",
			template: Template{Subject: "ok", Body: "at {latitude}"},
			ctx:      map[string]string{},
			wantErr:  ErrUnresolvedPlaceholder,
		},
		{
			name:     "unresolved_placeholder_in_subject",
			template: Template{Subject: "{missing}", Body: "ok"},
			ctx:      map[string]string{},
			wantErr:  ErrUnresolvedPlaceholder,
		},
		{
			name:     "unclosed_brace_passes_through",
			template: Template{Subject: "ok", Body: "set {a} and {dangling"},
			ctx:      map[string]string{"a": "1"},
			wantSubj: "ok",
			wantBody: "set 1 and {dangling",
		},
		{
			name:     "empty_value_is_resolved",
			template: Template{Subject: "ok", Body: "[{note}]"},
			ctx:      map[string]string{"note": ""},
			wantSubj: "ok",
			wantBody: "[]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subj, body, err := tt.template.Render(tt.ctx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if subj != tt.wantSubj {
				t.Errorf("subject: expected %q, got %q", tt.wantSubj, subj)
			}
			if body != tt.wantBody {
				t.Errorf("body: expected %q, got %q", tt.wantBody, body)
			}
		})
	}
}

func TestTemplateSet(t *testing.T) {
	t.Run("missing_template", func(t *testing.T) {
		set := NewTemplateSet()
		if _, err := set.Get(TemplateSOSAlert); !errors.Is(err, ErrTemplateNotFound) {
			t.Fatalf("expected ErrTemplateNotFound, got %v", err)
		}
	})

	t.Run("set_replaces", func(t *testing.T) {
		set := DefaultTemplates()
		set.Set(&Template{Type: TemplateSOSAlert, Subject: "custom", Body: "custom body"})

		tpl, err := set.Get(TemplateSOSAlert)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tpl.Subject != "custom" {
			t.Errorf("expected replaced subject, got %q", tpl.Subject)
		}
	})
}

func TestDefaultTemplatesRenderWithStandardContext(t *testing.T) {
	ctx := map[string]string{
		"owner_name": "Asha",
		"timestamp":  "Mon, 02 Jan 2006 15:04:05 IST",
		"location":   "https://maps.google.com/?q=28.6139,77.2090",
		"message":    "Help",
		"priority":   "CRITICAL",
	}
	set := DefaultTemplates()

	for _, tt := range []TemplateType{
		TemplateSOSAlert, TemplateSOSResolved, TemplateSOSCancelled,
		TemplateGeofenceEntry, TemplateGeofenceExit,
	} {
		t.Run(strings.ToLower(string(tt)), func(t *testing.T) {
			tpl, err := set.Get(tt)
			if err != nil {
				t.Fatalf("missing default template: %v", err)
			}
			if _, _, err := tpl.Render(ctx); err != nil {
				t.Errorf("default template %s must render with the standard context: %v", tt, err)
			}
		})
	}
}
