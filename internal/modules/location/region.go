// README: Serviced region bounds; every pickup, drop-off and search must fall inside.
package location

import "ridepool/internal/types"

// Bounds is an axis-aligned latitude/longitude rectangle.
type Bounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

// Contains reports whether p lies inside b. Points on an edge are inside.
func (b Bounds) Contains(p types.Point) bool {
	if !p.Valid() {
		return false
	}
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() types.Point {
	return types.Point{Lat: (b.North + b.South) / 2, Lng: (b.East + b.West) / 2}
}

// Region is the serviced metropolitan area (Bangalore).
var Region = Bounds{
	North: 13.023577,
	South: 12.823577,
	East:  77.747774,
	West:  77.447774,
}

// RegionCountry is the ISO country code used to restrict geocoding.
const RegionCountry = "in"
