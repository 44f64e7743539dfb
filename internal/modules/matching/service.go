// README: Ride matcher: proximity search, seat booking, cancellations and rider notifications.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"ridepool/internal/logging"
	"ridepool/internal/maps"
	"ridepool/internal/metrics"
	"ridepool/internal/modules/booking"
	"ridepool/internal/modules/history"
	"ridepool/internal/modules/location"
	"ridepool/internal/modules/notify"
	"ridepool/internal/modules/profile"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

var (
	ErrValidation           = errors.New("invalid request")
	ErrInsufficientCapacity = errors.New("not enough seats available")
	ErrRideNotActive        = errors.New("ride is not open for booking")
	ErrForbidden            = errors.New("not allowed")
	ErrInvalidState         = errors.New("invalid state transition")
	ErrNotDelivered         = errors.New("message could not be delivered")
)

type RideRepository interface {
	QueryActive(ctx context.Context, day *time.Time) ([]ride.Ride, error)
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	UpdateStatus(ctx context.Context, id types.ID, to ride.Status) error
}

// RideEditor validates and persists driver edits; *ride.Service implements it.
type RideEditor interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Update(ctx context.Context, cmd ride.UpdateCommand) (*ride.Ride, error)
}

type BookingRepository interface {
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	ListActiveByRide(ctx context.Context, rideID types.ID) ([]booking.Booking, error)
	Reserve(ctx context.Context, b *booking.Booking) (int, error)
	Release(ctx context.Context, id types.ID) (*booking.Booking, error)
	UpdateStatus(ctx context.Context, id types.ID, to booking.Status) error
}

type ProfileReader interface {
	Get(ctx context.Context, uid types.ID) (*profile.Profile, error)
}

type Notifier interface {
	Notify(ctx context.Context, uid types.ID, kind notify.Kind, p notify.Payload) error
	NotifyMany(ctx context.Context, uids []types.ID, kind notify.Kind, p notify.Payload) error
}

type RouteResolver interface {
	Route(ctx context.Context, origin, destination *types.Point) maps.Route
}

type HistoryRecorder interface {
	Record(ctx context.Context, e history.Event) error
	ForRide(ctx context.Context, rideID types.ID) ([]history.Event, error)
}

// Deps are the collaborators of Service. Profiles, Notifier, Routes and
// History are optional; the steps using them are skipped when nil.
type Deps struct {
	Rides    RideRepository
	Editor   RideEditor
	Bookings BookingRepository
	Profiles ProfileReader
	Notifier Notifier
	Routes   RouteResolver
	History  HistoryRecorder
}

type Options struct {
	// RestoreSeatsOnCancel returns a cancelled booking's seats to its ride.
	RestoreSeatsOnCancel bool
}

type Service struct {
	rides    RideRepository
	editor   RideEditor
	bookings BookingRepository
	profiles ProfileReader
	notifier Notifier
	routes   RouteResolver
	history  HistoryRecorder
	opts     Options
	now      func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	return &Service{
		rides:    deps.Rides,
		editor:   deps.Editor,
		bookings: deps.Bookings,
		profiles: deps.Profiles,
		notifier: deps.Notifier,
		routes:   deps.Routes,
		history:  deps.History,
		opts:     opts,
		now:      time.Now,
	}
}

// Search returns the active rides whose source and destination both lie
// within ProximityThresholdMeters of the query's, nearest first.
func (s *Service) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	start := time.Now()
	if !types.ValidPtr(q.Source) || !types.ValidPtr(q.Destination) {
		metrics.SearchesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: source and destination coordinates are required", ErrValidation)
	}
	if !location.Region.Contains(*q.Source) || !location.Region.Contains(*q.Destination) {
		metrics.SearchesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: locations must be within the serviced region", ErrValidation)
	}

	rides, err := s.rides.QueryActive(ctx, q.Date)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	result := &SearchResult{Matches: filterMatches(rides, *q.Source, *q.Destination)}
	if len(result.Matches) > 0 && s.routes != nil {
		if route := s.routes.Route(ctx, q.Source, q.Destination); !route.IsNull() {
			result.Route = &route
		}
	}

	metrics.SearchesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.SearchMatches.Observe(float64(len(result.Matches)))
	metrics.SearchLatency.Observe(time.Since(start).Seconds())
	logging.Ctx(ctx).Debug().
		Int("candidates", len(rides)).
		Int("matches", len(result.Matches)).
		Msg("ride search")
	return result, nil
}

func filterMatches(rides []ride.Ride, src, dst types.Point) []Match {
	out := make([]Match, 0)
	for _, r := range rides {
		if !r.HasEndpoints() {
			continue
		}
		ds := location.DistanceMeters(src, *r.SourceLocation)
		dd := location.DistanceMeters(dst, *r.DestinationLocation)
		if !withinThreshold(ds) || !withinThreshold(dd) {
			continue
		}
		out = append(out, Match{Ride: r, SourceDistance: ds, DestinationDistance: dd})
	}
	location.SortByDistance(out,
		func(m Match) float64 { return m.Combined() },
		func(m Match) string { return string(m.Ride.ID) },
	)
	return out
}

func withinThreshold(d float64) bool {
	return d <= ProximityThresholdMeters
}

// Book reserves seats on a ride for the passenger. The seat check and
// decrement are atomic; on any capacity failure nothing is written.
func (s *Service) Book(ctx context.Context, cmd BookCommand) (*BookResult, error) {
	if cmd.RideID == "" || cmd.Passenger.ID == "" {
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: ride and passenger are required", ErrValidation)
	}
	if cmd.Seats < 1 {
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: seats must be at least 1", ErrValidation)
	}

	r, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	if r.Status != ride.StatusActive {
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: ride is %s", ErrRideNotActive, r.Status)
	}
	if r.DriverID == cmd.Passenger.ID {
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: drivers cannot book their own ride", ErrValidation)
	}
	if cmd.Seats > r.Seats {
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientCapacity, cmd.Seats, r.Seats)
	}

	b := booking.New(r, cmd.Passenger, cmd.Seats, s.now())
	remaining, err := s.bookings.Reserve(ctx, b)
	switch {
	case errors.Is(err, booking.ErrInsufficientSeats):
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: %w", ErrInsufficientCapacity, err)
	case errors.Is(err, booking.ErrRideNotActive):
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: %w", ErrRideNotActive, err)
	case errors.Is(err, booking.ErrRideNotFound):
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, ride.ErrNotFound
	case err != nil:
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	metrics.BookingsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	logging.Ctx(ctx).Info().
		Str("ride_id", string(r.ID)).
		Str("booking_id", string(b.ID)).
		Int("seats", b.Seats).
		Int("remaining", remaining).
		Msg("seats booked")

	s.notify(ctx, r.DriverID, notify.KindBookingConfirmation, notify.Payload{
		Source:      r.Source,
		Destination: r.Destination,
		DateTime:    r.DateTime,
		Extra: map[string]string{
			"rideId":         string(r.ID),
			"bookingId":      string(b.ID),
			"seats":          strconv.Itoa(b.Seats),
			"passengerEmail": cmd.Passenger.Email,
			"driverName":     s.displayName(ctx, r.DriverID, r.DriverEmail),
		},
	})
	bookingID := b.ID
	s.record(ctx, history.Event{
		RideID:     r.ID,
		BookingID:  &bookingID,
		Entity:     history.EntityBooking,
		FromStatus: history.StatusNone,
		ToStatus:   string(booking.StatusActive),
		ActorType:  history.ActorPassenger,
		ActorID:    &cmd.Passenger.ID,
		Seats:      b.Seats,
	})
	return &BookResult{Booking: b, RemainingSeats: remaining}, nil
}

// CreateRide publishes a ride offer.
func (s *Service) CreateRide(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error) {
	r, err := s.editor.Create(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.record(ctx, history.Event{
		RideID:     r.ID,
		Entity:     history.EntityRide,
		FromStatus: history.StatusNone,
		ToStatus:   string(r.Status),
		ActorType:  history.ActorDriver,
		ActorID:    &cmd.Driver.ID,
		Seats:      r.TotalSeats,
	})
	return r, nil
}

// UpdateRide applies a driver's edits and tells every booked passenger.
func (s *Service) UpdateRide(ctx context.Context, cmd ride.UpdateCommand) (*ride.Ride, error) {
	r, err := s.editor.Update(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.notifyPassengers(ctx, r, notify.KindRideUpdate)
	return r, nil
}

// CancelRide lets the driver withdraw an active ride. Existing bookings
// are left as they are; their passengers are notified.
func (s *Service) CancelRide(ctx context.Context, cmd CancelRideCommand) error {
	r, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.DriverID != cmd.ActorID {
		return fmt.Errorf("%w: only the driver may cancel this ride", ErrForbidden)
	}
	if !ride.CanTransition(r.Status, ride.StatusCancelled) {
		return fmt.Errorf("%w: ride is %s", ErrInvalidState, r.Status)
	}
	if err := s.rides.UpdateStatus(ctx, r.ID, ride.StatusCancelled); err != nil {
		return err
	}
	s.record(ctx, history.Event{
		RideID:     r.ID,
		Entity:     history.EntityRide,
		FromStatus: string(r.Status),
		ToStatus:   string(ride.StatusCancelled),
		ActorType:  history.ActorDriver,
		ActorID:    &cmd.ActorID,
	})
	s.notifyPassengers(ctx, r, notify.KindRideCancellation)
	return nil
}

// CancelBooking lets the passenger withdraw an active booking. Seats go
// back to the ride only when RestoreSeatsOnCancel is set.
func (s *Service) CancelBooking(ctx context.Context, cmd CancelBookingCommand) (*booking.Booking, error) {
	b, err := s.bookings.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.PassengerID != cmd.ActorID {
		return nil, fmt.Errorf("%w: only the passenger may cancel this booking", ErrForbidden)
	}
	if !booking.CanTransition(b.Status, booking.StatusCancelled) {
		return nil, fmt.Errorf("%w: booking is %s", ErrInvalidState, b.Status)
	}

	if s.opts.RestoreSeatsOnCancel {
		released, err := s.bookings.Release(ctx, b.ID)
		if errors.Is(err, booking.ErrInvalidState) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		if err != nil {
			return nil, err
		}
		b = released
	} else {
		if err := s.bookings.UpdateStatus(ctx, b.ID, booking.StatusCancelled); err != nil {
			return nil, err
		}
		b.Status = booking.StatusCancelled
	}

	bookingID := b.ID
	s.record(ctx, history.Event{
		RideID:     b.RideID,
		BookingID:  &bookingID,
		Entity:     history.EntityBooking,
		FromStatus: string(booking.StatusActive),
		ToStatus:   string(booking.StatusCancelled),
		ActorType:  history.ActorPassenger,
		ActorID:    &cmd.ActorID,
		Seats:      b.Seats,
	})
	return b, nil
}

// SendMessage delivers a NEW_MESSAGE notification. The text itself is
// not stored.
func (s *Service) SendMessage(ctx context.Context, cmd MessageCommand) error {
	text := strings.TrimSpace(cmd.Text)
	switch {
	case cmd.From.ID == "" || cmd.To == "":
		return fmt.Errorf("%w: sender and recipient are required", ErrValidation)
	case cmd.From.ID == cmd.To:
		return fmt.Errorf("%w: cannot message yourself", ErrValidation)
	case text == "":
		return fmt.Errorf("%w: message is empty", ErrValidation)
	case utf8.RuneCountInString(text) > maxMessageLength:
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxMessageLength)
	}
	if s.notifier == nil {
		return ErrNotDelivered
	}
	err := s.notifier.Notify(ctx, cmd.To, notify.KindNewMessage, notify.Payload{
		SenderName: s.displayName(ctx, cmd.From.ID, cmd.From.Email),
		Extra: map[string]string{
			"senderId": string(cmd.From.ID),
			"text":     text,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotDelivered, err)
	}
	return nil
}

// RideHistory returns the ride's status events to its driver.
func (s *Service) RideHistory(ctx context.Context, rideID, actorID types.ID) ([]history.Event, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != actorID {
		return nil, fmt.Errorf("%w: only the driver may view ride history", ErrForbidden)
	}
	if s.history == nil {
		return []history.Event{}, nil
	}
	return s.history.ForRide(ctx, rideID)
}

func (s *Service) notifyPassengers(ctx context.Context, r *ride.Ride, kind notify.Kind) {
	if s.notifier == nil {
		return
	}
	bookings, err := s.bookings.ListActiveByRide(ctx, r.ID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("ride_id", string(r.ID)).Msg("could not list passengers to notify")
		return
	}
	seen := make(map[types.ID]bool, len(bookings))
	passengers := make([]types.ID, 0, len(bookings))
	for _, b := range bookings {
		if !seen[b.PassengerID] {
			seen[b.PassengerID] = true
			passengers = append(passengers, b.PassengerID)
		}
	}
	if len(passengers) == 0 {
		return
	}
	err = s.notifier.NotifyMany(ctx, passengers, kind, notify.Payload{
		Source:      r.Source,
		Destination: r.Destination,
		DateTime:    r.DateTime,
		Extra:       map[string]string{"rideId": string(r.ID)},
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("ride_id", string(r.ID)).Str("kind", string(kind)).Msg("passenger notification failed")
	}
}

func (s *Service) notify(ctx context.Context, uid types.ID, kind notify.Kind, p notify.Payload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, uid, kind, p); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("uid", string(uid)).Str("kind", string(kind)).Msg("notification failed")
	}
}

func (s *Service) displayName(ctx context.Context, uid types.ID, fallback string) string {
	if s.profiles == nil {
		return fallback
	}
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			logging.Ctx(ctx).Debug().Err(err).Str("uid", string(uid)).Msg("profile lookup failed")
		}
		return fallback
	}
	if name := p.DisplayName(); name != "" {
		return name
	}
	return fallback
}

func (s *Service) record(ctx context.Context, e history.Event) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, e); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("ride_id", string(e.RideID)).Msg("history append failed")
	}
}
