// README: Booking aggregate, status flow and the seat arithmetic shared by reserve and release.
package booking

import (
	"fmt"
	"time"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Booking is a passenger's hold on seats of one ride. Source, Destination
// and DateTime are copied from the ride at booking time.
type Booking struct {
	ID             types.ID  `json:"id" firestore:"-"`
	RideID         types.ID  `json:"rideId" firestore:"rideId"`
	PassengerID    types.ID  `json:"passengerId" firestore:"passengerId"`
	PassengerEmail string    `json:"passengerEmail" firestore:"passengerEmail"`
	Seats          int       `json:"seats" firestore:"seats"`
	Status         Status    `json:"status" firestore:"status"`
	Source         string    `json:"source" firestore:"source"`
	Destination    string    `json:"destination" firestore:"destination"`
	DateTime       time.Time `json:"dateTime" firestore:"dateTime"`
	CreatedAt      time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt      time.Time `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

var AllowedTransitions = map[Status][]Status{
	StatusActive: {StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// New snapshots the ride's route and time into an active booking.
func New(r *ride.Ride, passenger types.Identity, seats int, now time.Time) *Booking {
	return &Booking{
		CreatedAt:      now,
		UpdatedAt:      now,
		RideID:         r.ID,
		PassengerID:    passenger.ID,
		PassengerEmail: passenger.Email,
		Seats:          seats,
		Status:         StatusActive,
		Source:         r.Source,
		Destination:    r.Destination,
		DateTime:       r.DateTime,
	}
}

// takeSeats returns the ride's seat count after holding n seats.
func takeSeats(r *ride.Ride, n int) (int, error) {
	if r.Status != ride.StatusActive {
		return 0, fmt.Errorf("%w: ride is %s", ErrRideNotActive, r.Status)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: seats must be positive", ErrValidation)
	}
	if n > r.Seats {
		return 0, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientSeats, n, r.Seats)
	}
	return r.Seats - n, nil
}

// returnSeats gives n seats back to the ride without exceeding its capacity.
// Rides created before totalSeats existed are not capped.
func returnSeats(r *ride.Ride, n int) int {
	seats := r.Seats + n
	if r.TotalSeats > 0 && seats > r.TotalSeats {
		seats = r.TotalSeats
	}
	return seats
}
