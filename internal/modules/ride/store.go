// README: Ride store backed by the Firestore "rides" collection.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ridepool/internal/logging"
	"ridepool/internal/types"
)

// Collection is the Firestore collection holding ride offers.
const Collection = "rides"

type Store struct {
	client *firestore.Client
	loc    *time.Location
}

// NewStore returns a Store; loc defines calendar days for date-filtered queries.
func NewStore(client *firestore.Client, loc *time.Location) *Store {
	return &Store{client: client, loc: loc}
}

func (s *Store) col() *firestore.CollectionRef {
	return s.client.Collection(Collection)
}

func (s *Store) Create(ctx context.Context, r *Ride) error {
	ref := s.col().NewDoc()
	if _, err := ref.Create(ctx, r); err != nil {
		return fmt.Errorf("%w: create ride: %w", ErrBackendWrite, err)
	}
	r.ID = types.ID(ref.ID)
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	snap, err := s.col().Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get ride %s: %w", ErrBackendRead, id, err)
	}
	return decode(snap)
}

// QueryActive returns every active ride, optionally limited to one calendar
// day. Results keep the backend's order; there is no pagination.
func (s *Store) QueryActive(ctx context.Context, day *time.Time) ([]Ride, error) {
	q := s.col().Where("status", "==", string(StatusActive))
	if day != nil {
		start, end := DayWindow(*day, s.loc)
		q = q.Where("dateTime", ">=", start).Where("dateTime", "<=", end)
	}
	return s.list(ctx, q, "query active rides")
}

func (s *Store) ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	q := s.col().Where("driverId", "==", string(driverID)).OrderBy("dateTime", firestore.Desc)
	return s.list(ctx, q, "list rides by driver")
}

func (s *Store) list(ctx context.Context, q firestore.Query, op string) ([]Ride, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendRead, op, err)
	}
	out := make([]Ride, 0, len(snaps))
	for _, snap := range snaps {
		r, err := decode(snap)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("ride_id", snap.Ref.ID).Msg("skipping malformed ride")
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, to Status) error {
	return s.patch(ctx, id, []firestore.Update{{Path: "status", Value: string(to)}})
}

func (s *Store) patch(ctx context.Context, id types.ID, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})
	_, err := s.col().Doc(string(id)).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: update ride %s: %w", ErrBackendWrite, id, err)
	}
	return nil
}

// Update runs mutate against the current ride inside a transaction and
// writes the result back. An error from mutate aborts without writing.
func (s *Store) Update(ctx context.Context, id types.ID, mutate func(*Ride) error) (*Ride, error) {
	ref := s.col().Doc(string(id))
	var out *Ride
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		r, err := decode(snap)
		if err != nil {
			return err
		}
		if err := mutate(r); err != nil {
			return err
		}
		if err := tx.Set(ref, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update ride %s: %w", ErrBackendWrite, id, err)
	}
	return out, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidState)
}

func decode(snap *firestore.DocumentSnapshot) (*Ride, error) {
	var r Ride
	if err := snap.DataTo(&r); err != nil {
		return nil, fmt.Errorf("decode ride %s: %w", snap.Ref.ID, err)
	}
	r.ID = types.ID(snap.Ref.ID)
	return &r, nil
}
