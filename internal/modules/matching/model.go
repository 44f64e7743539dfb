// README: Search queries, matches and commands handled by the ride matcher.
package matching

import (
	"time"

	"ridepool/internal/maps"
	"ridepool/internal/modules/booking"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

// ProximityThresholdMeters is the largest distance, inclusive, between a
// search endpoint and the ride's matching endpoint.
const ProximityThresholdMeters = 2000.0

// maxMessageLength bounds direct messages, counted in runes.
const maxMessageLength = 1000

// SearchQuery is ephemeral and never stored. Date limits results to one
// calendar day when set.
type SearchQuery struct {
	Source      *types.Point
	Destination *types.Point
	Date        *time.Time
}

type Match struct {
	Ride                ride.Ride `json:"ride"`
	SourceDistance      float64   `json:"sourceDistance"`
	DestinationDistance float64   `json:"destinationDistance"`
}

// Combined is the ordering key of a match.
func (m Match) Combined() float64 {
	return m.SourceDistance + m.DestinationDistance
}

type SearchResult struct {
	Matches []Match     `json:"matches"`
	Route   *maps.Route `json:"route,omitempty"`
}

type BookCommand struct {
	RideID    types.ID
	Seats     int
	Passenger types.Identity
}

type BookResult struct {
	Booking        *booking.Booking `json:"booking"`
	RemainingSeats int              `json:"remainingSeats"`
}

type CancelRideCommand struct {
	RideID  types.ID
	ActorID types.ID
}

type CancelBookingCommand struct {
	BookingID types.ID
	ActorID   types.ID
}

type MessageCommand struct {
	From types.Identity
	To   types.ID
	Text string
}
