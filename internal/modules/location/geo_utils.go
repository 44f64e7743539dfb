// Package location holds pure geographic helpers.
package location

import (
	"cmp"
	"math"
	"slices"

	"ridepool/internal/types"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance in metres between a and b.
func DistanceMeters(a, b types.Point) float64 {
	return haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push a a hair past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance orders items nearest first. Equal distances are ordered by
// identifier so results are deterministic.
func SortByDistance[T any](items []T, dist func(T) float64, id func(T) string) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Or(cmp.Compare(dist(a), dist(b)), cmp.Compare(id(a), id(b)))
	})
}
