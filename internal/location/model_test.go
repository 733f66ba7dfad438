package location

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSampleValidate(t *testing.T) {
	base := func() *Sample {
		return &Sample{
			OwnerID:    "owner-1",
			Latitude:   28.6139,
			Longitude:  77.2090,
			CapturedAt: time.Now(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Sample)
		wantErr error
	}{
		{
			name:   "valid_sample",
			mutate: func(s *Sample) {},
		},
		{
			name:   "boundary_latitude_90",
			mutate: func(s *Sample) { s.Latitude = 90 },
		},
		{
			name:   "boundary_latitude_minus_90",
			mutate: func(s *Sample) { s.Latitude = -90 },
		},
		{
			name:   "boundary_longitude_180",
			mutate: func(s *Sample) { s.Longitude = 180 },
		},
		{
			name:   "boundary_longitude_minus_180",
			mutate: func(s *Sample) { s.Longitude = -180 },
		},
		{
			name:    "latitude_too_large",
			mutate:  func(s *Sample) { s.Latitude = 90.0001 },
			wantErr: ErrInvalidLatitude,
		},
		{
			name:    "latitude_too_small",
			mutate:  func(s *Sample) { s.Latitude = -91 },
			wantErr: ErrInvalidLatitude,
		},
		{
			name:    "latitude_nan",
			mutate:  func(s *Sample) { s.Latitude = math.NaN() },
			wantErr: ErrInvalidLatitude,
		},
		{
			name:    "longitude_too_large",
			mutate:  func(s *Sample) { s.Longitude = 180.5 },
			wantErr: ErrInvalidLongitude,
		},
		{
			name:    "longitude_too_small",
			mutate:  func(s *Sample) { s.Longitude = -181 },
			wantErr: ErrInvalidLongitude,
		},
		{
			name:    "longitude_nan",
			mutate:  func(s *Sample) { s.Longitude = math.NaN() },
			wantErr: ErrInvalidLongitude,
		},
		{
			name:    "missing_owner",
			mutate:  func(s *Sample) { s.OwnerID = "" },
			wantErr: ErrMissingOwner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNormalizeCoordinates(t *testing.T) {
	s := &Sample{
		OwnerID:   "owner-1",
		Latitude:  28.61391234567,
		Longitude: -77.20909876543,
	}
	s.NormalizeCoordinates()

	if s.Latitude != 28.613912 {
		t.Errorf("expected latitude 28.613912, got %v", s.Latitude)
	}
	if s.Longitude != -77.209099 {
		t.Errorf("expected longitude -77.209099, got %v", s.Longitude)
	}
}

func TestNormalizeCoordinatesIdempotent(t *testing.T) {
	s := &Sample{OwnerID: "owner-1", Latitude: 28.613912, Longitude: 77.209001}
	s.NormalizeCoordinates()
	lat, lng := s.Latitude, s.Longitude
	s.NormalizeCoordinates()
	if s.Latitude != lat || s.Longitude != lng {
		t.Errorf("normalization changed already-normalized coordinates: %v,%v", s.Latitude, s.Longitude)
	}
}
