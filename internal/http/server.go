// README: API gateway; holds the handler dependencies and builds the gin engine.
package http

import (
	"time"

	"ridepool/internal/http/handlers"
	"ridepool/internal/infra"
)

type ServerDeps struct {
	Verifier      infra.TokenVerifier
	Matcher       handlers.Matcher
	Rides         handlers.RideReader
	Bookings      handlers.BookingLister
	Profiles      handlers.ProfileService
	Places        handlers.PlaceSuggester
	Routes        handlers.RoutePreviewer
	Notifications handlers.Subscriber
	Assistant     handlers.Assistant
	// Location is the zone search dates are read in.
	Location  *time.Location
	Heartbeat time.Duration
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}
