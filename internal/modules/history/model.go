// README: Status history of rides and their bookings.
package history

import (
	"time"

	"ridepool/internal/types"
)

type Entity string

const (
	EntityRide    Entity = "ride"
	EntityBooking Entity = "booking"
)

const (
	ActorDriver    = "driver"
	ActorPassenger = "passenger"
	ActorSystem    = "system"
)

// StatusNone is the from-status of a creation event.
const StatusNone = "none"

type Event struct {
	ID         string    `json:"id"`
	RideID     types.ID  `json:"rideId"`
	BookingID  *types.ID `json:"bookingId,omitempty"`
	Entity     Entity    `json:"entity"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	ActorType  string    `json:"actorType"`
	ActorID    *types.ID `json:"actorId,omitempty"`
	Seats      int       `json:"seats"`
	CreatedAt  time.Time `json:"createdAt"`
}
