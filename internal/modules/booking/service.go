// README: Booking service lists a passenger's bookings together with their rides.
package booking

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"ridepool/internal/logging"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrValidation        = errors.New("invalid booking")
	ErrRideNotFound      = errors.New("ride not found")
	ErrRideNotActive     = errors.New("ride is not active")
	ErrInsufficientSeats = errors.New("not enough seats available")
	ErrInvalidState      = errors.New("invalid booking state transition")
	ErrBackendRead       = errors.New("booking store read failed")
	ErrBackendWrite      = errors.New("booking store write failed")
)

type Lister interface {
	ListByPassenger(ctx context.Context, passengerID types.ID) ([]Booking, error)
}

type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

// View is a booking with the current state of its ride; Ride is nil when
// the ride could not be loaded.
type View struct {
	Booking
	Ride *ride.Ride `json:"ride,omitempty"`
}

const enrichConcurrency = 8

type Service struct {
	store Lister
	rides RideReader
}

func NewService(store Lister, rides RideReader) *Service {
	return &Service{store: store, rides: rides}
}

func (s *Service) ListByPassenger(ctx context.Context, passengerID types.ID) ([]View, error) {
	bookings, err := s.store.ListByPassenger(ctx, passengerID)
	if err != nil {
		return nil, err
	}
	out := make([]View, len(bookings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range bookings {
		out[i].Booking = bookings[i]
		g.Go(func() error {
			r, err := s.rides.Get(gctx, bookings[i].RideID)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).
					Str("booking_id", string(bookings[i].ID)).
					Str("ride_id", string(bookings[i].RideID)).
					Msg("booking ride lookup failed")
				return nil
			}
			out[i].Ride = r
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}
