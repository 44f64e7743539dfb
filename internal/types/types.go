// README: Shared value objects used across modules.
package types

import "math"

// ID is an opaque document identifier (Firestore document id or Firebase uid).
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

// Valid reports whether both components are finite and inside the WGS84 range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ValidPtr is Valid for optional points; nil is invalid.
func ValidPtr(p *Point) bool {
	return p != nil && p.Valid()
}

// Identity is the authenticated caller handed to the core by the auth boundary.
type Identity struct {
	ID    ID
	Email string
}
