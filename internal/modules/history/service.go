// README: History service stamps and records transitions and lists them per ride.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ridepool/internal/types"
)

type Repository interface {
	Append(ctx context.Context, e *Event) error
	ListByRide(ctx context.Context, rideID types.ID) ([]Event, error)
}

type Service struct {
	store Repository
	now   func() time.Time
}

func NewService(store Repository) *Service {
	return &Service{store: store, now: time.Now}
}

// Record assigns an ID and timestamp when missing and stores e.
func (s *Service) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	return s.store.Append(ctx, &e)
}

func (s *Service) ForRide(ctx context.Context, rideID types.ID) ([]Event, error) {
	events, err := s.store.ListByRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}
