package maps

import (
	"context"
	"errors"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"ridepool/internal/logging"
	"ridepool/internal/types"
)

// DefaultRouteTimeout bounds a Directions call when no timeout is configured.
const DefaultRouteTimeout = 5 * time.Second

var errNoRoute = errors.New("no route found")

// directionsAPI is the subset of *maps.Client used for routing.
type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// Route is a drivable path for display. The zero value is the null result.
type Route struct {
	Geometry        []types.Point `json:"geometry"`
	DistanceMeters  int           `json:"distance"`
	DurationSeconds int           `json:"duration"`
}

// IsNull reports whether r is the null result.
func (r Route) IsNull() bool {
	return r.Geometry == nil
}

// Router fetches driving routes. Route display is cosmetic, so Router never
// returns an error.
type Router struct {
	api     directionsAPI
	guard   *guard[[]maps.Route]
	timeout time.Duration
}

func NewRouter(api directionsAPI, timeout time.Duration, requestsPerSecond float64) *Router {
	if timeout <= 0 {
		timeout = DefaultRouteTimeout
	}
	return &Router{
		api:     api,
		guard:   newGuard[[]maps.Route]("directions", requestsPerSecond),
		timeout: timeout,
	}
}

// Route returns the driving route from origin to destination, or the null
// result on invalid input, timeout or upstream failure.
func (r *Router) Route(ctx context.Context, origin, destination *types.Point) Route {
	if !types.ValidPtr(origin) || !types.ValidPtr(destination) {
		logging.Ctx(ctx).Debug().Msg("route skipped: invalid coordinates")
		return Route{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := &maps.DirectionsRequest{
		Origin:      formatLatLng(*origin),
		Destination: formatLatLng(*destination),
		Mode:        maps.TravelModeDriving,
		Region:      "in",
	}
	routes, err := r.guard.do(ctx, func() ([]maps.Route, error) {
		routes, _, err := r.api.Directions(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(routes) == 0 {
			return nil, errNoRoute
		}
		return routes, nil
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("route unavailable")
		return Route{}
	}

	best := routes[0]
	path, err := maps.DecodePolyline(best.OverviewPolyline.Points)
	if err != nil || len(path) == 0 {
		logging.Ctx(ctx).Warn().Err(err).Msg("route polyline undecodable")
		return Route{}
	}

	out := Route{Geometry: make([]types.Point, 0, len(path))}
	for _, p := range path {
		out.Geometry = append(out.Geometry, types.Point{Lat: p.Lat, Lng: p.Lng})
	}
	for _, leg := range best.Legs {
		if leg == nil {
			continue
		}
		out.DistanceMeters += leg.Distance.Meters
		out.DurationSeconds += int(leg.Duration / time.Second)
	}
	return out
}

func formatLatLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}
