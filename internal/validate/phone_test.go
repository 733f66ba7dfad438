package validate

import (
	"errors"
	"testing"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "bare_e164",
			input: "+919876543210",
			want:  "+919876543210",
		},
		{
			name:  "spaces_stripped",
			input: "+91 98765 43210",
			want:  "+919876543210",
		},
		{
			name:  "hyphens_and_parens_stripped",
			input: "+1 (555) 010-2345",
			want:  "+15550102345",
		},
		{
			name:  "minimum_length",
			input: "+1234567",
			want:  "+1234567",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: ErrEmpty,
		},
		{
			name:    "missing_plus",
			input:   "919876543210",
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "too_short",
			input:   "+12345",
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "too_long",
			input:   "+1234567890123456",
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "letters",
			input:   "+1800FLOWERS",
			wantErr: ErrInvalidPhone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Phone(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Phone(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
