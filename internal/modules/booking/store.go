// README: Booking store backed by the Firestore "bookings" collection.
package booking

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ridepool/internal/logging"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

const Collection = "bookings"

type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) col() *firestore.CollectionRef {
	return s.client.Collection(Collection)
}

func (s *Store) rideRef(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(ride.Collection).Doc(string(id))
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	snap, err := s.col().Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get booking %s: %w", ErrBackendRead, id, err)
	}
	return decode(snap)
}

func (s *Store) ListByPassenger(ctx context.Context, passengerID types.ID) ([]Booking, error) {
	q := s.col().Where("passengerId", "==", string(passengerID)).OrderBy("createdAt", firestore.Desc)
	return s.list(ctx, q, "list bookings by passenger")
}

func (s *Store) ListActiveByRide(ctx context.Context, rideID types.ID) ([]Booking, error) {
	q := s.col().Where("rideId", "==", string(rideID)).Where("status", "==", string(StatusActive))
	return s.list(ctx, q, "list active bookings by ride")
}

func (s *Store) list(ctx context.Context, q firestore.Query, op string) ([]Booking, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendRead, op, err)
	}
	out := make([]Booking, 0, len(snaps))
	for _, snap := range snaps {
		b, err := decode(snap)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("booking_id", snap.Ref.ID).Msg("skipping malformed booking")
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, to Status) error {
	_, err := s.col().Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(to)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: update booking %s: %w", ErrBackendWrite, id, err)
	}
	return nil
}

// Reserve creates b and takes b.Seats from its ride in one transaction.
// It returns the ride's remaining seats. Nothing is written when the ride
// is no longer active or has fewer seats than requested.
func (s *Store) Reserve(ctx context.Context, b *Booking) (int, error) {
	rideRef := s.rideRef(b.RideID)
	var (
		ref       *firestore.DocumentRef
		remaining int
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		r, err := txGetRide(tx, rideRef)
		if err != nil {
			return err
		}
		left, err := takeSeats(r, b.Seats)
		if err != nil {
			return err
		}
		if err := tx.Update(rideRef, []firestore.Update{
			{Path: "seats", Value: left},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}); err != nil {
			return err
		}
		ref = s.col().NewDoc()
		if err := tx.Create(ref, b); err != nil {
			return err
		}
		remaining = left
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: reserve seats on ride %s: %w", ErrBackendWrite, b.RideID, err)
	}
	b.ID = types.ID(ref.ID)
	return remaining, nil
}

// Release cancels an active booking and returns its seats to the ride,
// capped at the ride's capacity. Seats are not returned to a ride that is
// no longer active.
func (s *Store) Release(ctx context.Context, id types.ID) (*Booking, error) {
	ref := s.col().Doc(string(id))
	var out *Booking
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		b, err := decode(snap)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, StatusCancelled) {
			return fmt.Errorf("%w: booking is %s", ErrInvalidState, b.Status)
		}
		rideRef := s.rideRef(b.RideID)
		r, err := txGetRide(tx, rideRef)
		if err != nil && !errors.Is(err, ErrRideNotFound) {
			return err
		}
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(StatusCancelled)},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}); err != nil {
			return err
		}
		if r != nil && r.Status == ride.StatusActive {
			if err := tx.Update(rideRef, []firestore.Update{
				{Path: "seats", Value: returnSeats(r, b.Seats)},
				{Path: "updatedAt", Value: firestore.ServerTimestamp},
			}); err != nil {
				return err
			}
		}
		b.Status = StatusCancelled
		out = b
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: release booking %s: %w", ErrBackendWrite, id, err)
	}
	return out, nil
}

func txGetRide(tx *firestore.Transaction, ref *firestore.DocumentRef) (*ride.Ride, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, err
	}
	var r ride.Ride
	if err := snap.DataTo(&r); err != nil {
		return nil, fmt.Errorf("decode ride %s: %w", ref.ID, err)
	}
	r.ID = types.ID(ref.ID)
	return &r, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRideNotFound) ||
		errors.Is(err, ErrRideNotActive) || errors.Is(err, ErrInsufficientSeats) ||
		errors.Is(err, ErrInvalidState) || errors.Is(err, ErrValidation)
}

func decode(snap *firestore.DocumentSnapshot) (*Booking, error) {
	var b Booking
	if err := snap.DataTo(&b); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", snap.Ref.ID, err)
	}
	b.ID = types.ID(snap.Ref.ID)
	return &b, nil
}
