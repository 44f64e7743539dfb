// README: Ride service creates, lists and edits ride offers.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ridepool/internal/modules/location"
	"ridepool/internal/types"
)

var (
	ErrNotFound     = errors.New("ride not found")
	ErrValidation   = errors.New("invalid ride")
	ErrForbidden    = errors.New("only the driver may change this ride")
	ErrInvalidState = errors.New("invalid ride state transition")
	ErrBackendRead  = errors.New("ride store read failed")
	ErrBackendWrite = errors.New("ride store write failed")
)

// Repository is the persistence the service needs; *Store implements it.
type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error)
	Update(ctx context.Context, id types.ID, mutate func(*Ride) error) (*Ride, error)
}

type Service struct {
	store Repository
	now   func() time.Time
}

func NewService(store Repository) *Service {
	return &Service{store: store, now: time.Now}
}

type CreateCommand struct {
	Driver              types.Identity
	Source              string
	SourceLocation      *types.Point
	Destination         string
	DestinationLocation *types.Point
	DateTime            time.Time
	Seats               int
	Price               float64
	CarModel            string
	CarNumber           string
	IsRecurring         bool
	RecurringDays       *Recurrence
}

type UpdateCommand struct {
	RideID   types.ID
	DriverID types.ID
	Patch    Patch
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if err := s.validateCreate(cmd); err != nil {
		return nil, err
	}
	r := &Ride{
		DriverID:            cmd.Driver.ID,
		DriverEmail:         cmd.Driver.Email,
		Source:              strings.TrimSpace(cmd.Source),
		SourceLocation:      cmd.SourceLocation,
		Destination:         strings.TrimSpace(cmd.Destination),
		DestinationLocation: cmd.DestinationLocation,
		DateTime:            cmd.DateTime,
		Seats:               cmd.Seats,
		TotalSeats:          cmd.Seats,
		Price:               cmd.Price,
		CarModel:            strings.TrimSpace(cmd.CarModel),
		CarNumber:           strings.ToUpper(strings.TrimSpace(cmd.CarNumber)),
		Status:              StatusActive,
		IsRecurring:         cmd.IsRecurring,
		CreatedAt:           s.now(),
	}
	r.UpdatedAt = r.CreatedAt
	if cmd.IsRecurring {
		days := *cmd.RecurringDays
		r.RecurringDays = &days
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) validateCreate(cmd CreateCommand) error {
	switch {
	case cmd.Driver.ID == "":
		return fmt.Errorf("%w: missing driver", ErrValidation)
	case strings.TrimSpace(cmd.Source) == "" || strings.TrimSpace(cmd.Destination) == "":
		return fmt.Errorf("%w: source and destination labels are required", ErrValidation)
	case !types.ValidPtr(cmd.SourceLocation) || !location.Region.Contains(*cmd.SourceLocation):
		return fmt.Errorf("%w: source location must be within the serviced region", ErrValidation)
	case !types.ValidPtr(cmd.DestinationLocation) || !location.Region.Contains(*cmd.DestinationLocation):
		return fmt.Errorf("%w: destination location must be within the serviced region", ErrValidation)
	case cmd.DateTime.IsZero():
		return fmt.Errorf("%w: missing date and time", ErrValidation)
	case !cmd.DateTime.After(s.now()):
		return fmt.Errorf("%w: departure must be in the future", ErrValidation)
	case cmd.Seats < 1 || cmd.Seats > MaxSeats:
		return fmt.Errorf("%w: seats must be between 1 and %d", ErrValidation, MaxSeats)
	case cmd.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	case strings.TrimSpace(cmd.CarModel) == "" || strings.TrimSpace(cmd.CarNumber) == "":
		return fmt.Errorf("%w: car model and number are required", ErrValidation)
	case cmd.IsRecurring && (cmd.RecurringDays == nil || len(cmd.RecurringDays.Days()) == 0):
		return fmt.Errorf("%w: recurring rides need at least one weekday", ErrValidation)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	return s.store.ListByDriver(ctx, driverID)
}

// Update applies a driver's edits to an active ride. Capacity may shrink only
// down to the seats already booked.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Ride, error) {
	if cmd.Patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	return s.store.Update(ctx, cmd.RideID, func(r *Ride) error {
		if r.DriverID != cmd.DriverID {
			return ErrForbidden
		}
		if r.Status != StatusActive {
			return fmt.Errorf("%w: ride is %s", ErrInvalidState, r.Status)
		}
		now := s.now()
		if err := applyPatch(r, cmd.Patch, now); err != nil {
			return err
		}
		r.UpdatedAt = now
		return nil
	})
}

func applyPatch(r *Ride, p Patch, now time.Time) error {
	if p.DateTime != nil {
		if !p.DateTime.After(now) {
			return fmt.Errorf("%w: departure must be in the future", ErrValidation)
		}
		r.DateTime = *p.DateTime
	}
	if p.Price != nil {
		if *p.Price <= 0 {
			return fmt.Errorf("%w: price must be positive", ErrValidation)
		}
		r.Price = *p.Price
	}
	if p.CarModel != nil {
		if strings.TrimSpace(*p.CarModel) == "" {
			return fmt.Errorf("%w: car model is required", ErrValidation)
		}
		r.CarModel = strings.TrimSpace(*p.CarModel)
	}
	if p.CarNumber != nil {
		if strings.TrimSpace(*p.CarNumber) == "" {
			return fmt.Errorf("%w: car number is required", ErrValidation)
		}
		r.CarNumber = strings.ToUpper(strings.TrimSpace(*p.CarNumber))
	}
	if p.TotalSeats != nil {
		total := *p.TotalSeats
		booked := r.BookedSeats()
		if total < 1 || total > MaxSeats {
			return fmt.Errorf("%w: seats must be between 1 and %d", ErrValidation, MaxSeats)
		}
		if total < booked {
			return fmt.Errorf("%w: %d seats are already booked", ErrValidation, booked)
		}
		r.TotalSeats = total
		r.Seats = total - booked
	}
	if p.IsRecurring != nil {
		r.IsRecurring = *p.IsRecurring
	}
	if p.RecurringDays != nil {
		days := *p.RecurringDays
		r.RecurringDays = &days
	}
	if !r.IsRecurring {
		r.RecurringDays = nil
	} else if r.RecurringDays == nil || len(r.RecurringDays.Days()) == 0 {
		return fmt.Errorf("%w: recurring rides need at least one weekday", ErrValidation)
	}
	return nil
}
