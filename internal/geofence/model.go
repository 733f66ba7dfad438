// Package geofence implements circular geofences with haversine containment
// and the evaluator that turns location fixes into entry/exit events,
// escalating the dangerous ones into SOS alerts.
package geofence

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind classifies a geofence. The kind decides what an entry or exit means:
// RESTRICTED entry and SAFE_ZONE exit are dangerous, the rest informational.
type Kind string

const (
	KindHome       Kind = "HOME"
	KindWork       Kind = "WORK"
	KindSafeZone   Kind = "SAFE_ZONE"
	KindRestricted Kind = "RESTRICTED"
	KindCustom     Kind = "CUSTOM"
)

// ValidKinds lists every accepted geofence kind.
var ValidKinds = []Kind{KindHome, KindWork, KindSafeZone, KindRestricted, KindCustom}

// IsValid checks whether the kind is one of the known values.
func (k Kind) IsValid() bool {
	switch k {
	case KindHome, KindWork, KindSafeZone, KindRestricted, KindCustom:
		return true
	}
	return false
}

// Geofence validation and lookup errors.
var (
	ErrGeofenceNotFound = errors.New("geofence not found")
	ErrInvalidKind      = errors.New("invalid geofence kind")
	ErrInvalidRadius    = errors.New("radius must be greater than zero meters")
	ErrInvalidCenter    = errors.New("center coordinates out of range")
	ErrMissingName      = errors.New("geofence name is required")
	ErrMissingOwner     = errors.New("owner id is required")
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Geofence is a circular region around a center point. A fix is inside when
// its haversine distance to the center is at most RadiusM.
type Geofence struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`

	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
	RadiusM   float64 `json:"radius_m"`

	Active        bool `json:"active"`
	NotifyOnEntry bool `json:"notify_on_entry"`
	NotifyOnExit  bool `json:"notify_on_exit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fence definition.
func (g *Geofence) Validate() error {
	if g.OwnerID == "" {
		return ErrMissingOwner
	}
	if g.Name == "" {
		return ErrMissingName
	}
	if !g.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, g.Kind)
	}
	if math.IsNaN(g.RadiusM) || g.RadiusM <= 0 {
		return ErrInvalidRadius
	}
	if math.IsNaN(g.CenterLat) || g.CenterLat < -90 || g.CenterLat > 90 ||
		math.IsNaN(g.CenterLng) || g.CenterLng < -180 || g.CenterLng > 180 {
		return ErrInvalidCenter
	}
	return nil
}

// Contains reports whether the point is inside the fence.
func (g *Geofence) Contains(lat, lng float64) bool {
	return Haversine(g.CenterLat, g.CenterLng, lat, lng) <= g.RadiusM
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lng2 - lng1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
