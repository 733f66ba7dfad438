// Package location provides the telemetry side of the safety pipeline:
// sample validation and persistence, the ingest gateway with its geofence
// and live-stream side effects, and the subscriber registry used for
// real-time fan-out to guardians.
package location

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Validation errors for location samples.
var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrMissingOwner     = errors.New("owner id is required")
	ErrSampleNotFound   = errors.New("location sample not found")
)

// Sample represents one persisted GPS fix. Samples are immutable once
// stored; the flags describe the context the device reported them in.
type Sample struct {
	ID       string  `json:"id"`
	OwnerID  string  `json:"owner_id"`
	DeviceID *string `json:"device_id,omitempty"`

	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"` // meters
	Speed     *float64 `json:"speed,omitempty"`    // km/h
	Heading   *float64 `json:"heading,omitempty"`  // degrees

	Address *string `json:"address,omitempty"`

	IsSOS  bool `json:"is_sos"`
	IsHome bool `json:"is_home"`
	IsWork bool `json:"is_work"`

	// OutOfOrder marks a sample whose captured-at timestamp is older than a
	// previously accepted sample from the same device session. GPS jitter is
	// expected, so such samples are flagged rather than rejected.
	OutOfOrder bool `json:"out_of_order,omitempty"`

	CapturedAt time.Time `json:"captured_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks coordinate ranges and required fields.
// It does not mutate the sample.
func (s *Sample) Validate() error {
	if s.OwnerID == "" {
		return ErrMissingOwner
	}
	if math.IsNaN(s.Latitude) || s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w (got %v)", ErrInvalidLatitude, s.Latitude)
	}
	if math.IsNaN(s.Longitude) || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w (got %v)", ErrInvalidLongitude, s.Longitude)
	}
	return nil
}

// NormalizeCoordinates rounds latitude and longitude to six decimal places,
// the fixed-point precision the store uses (~11cm at the equator).
func (s *Sample) NormalizeCoordinates() {
	s.Latitude = roundCoord(s.Latitude)
	s.Longitude = roundCoord(s.Longitude)
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
