// README: History store backed by the PostgreSQL ride_events table.
package history

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_events (
			id, ride_id, booking_id, entity, from_status, to_status,
			actor_type, actor_id, seats, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID,
		string(e.RideID),
		toStringPtr(e.BookingID),
		string(e.Entity),
		e.FromStatus,
		e.ToStatus,
		e.ActorType,
		toStringPtr(e.ActorID),
		e.Seats,
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListByRide(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, ride_id, booking_id, entity, from_status, to_status,
		       actor_type, actor_id, seats, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY created_at, id`, string(rideID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var bookingID, actorID sql.NullString
		if err := rows.Scan(
			&e.ID, &e.RideID, &bookingID, &e.Entity, &e.FromStatus, &e.ToStatus,
			&e.ActorType, &actorID, &e.Seats, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.BookingID = toIDPtr(bookingID)
		e.ActorID = toIDPtr(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}
