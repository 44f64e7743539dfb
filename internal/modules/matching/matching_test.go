// README: Matcher tests over an in-memory backend: proximity boundary, capacity, date window and cancellation policy.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"ridepool/internal/maps"
	"ridepool/internal/modules/booking"
	"ridepool/internal/modules/history"
	"ridepool/internal/modules/notify"
	"ridepool/internal/modules/profile"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

// ---------------------------------------------------------------------------
// In-memory backend
// ---------------------------------------------------------------------------

// memBackend holds rides and bookings behind one lock so Reserve and
// Release are atomic like the Firestore transactions they stand in for.
type memBackend struct {
	mu       sync.Mutex
	loc      *time.Location
	rides    map[types.ID]ride.Ride
	bookings map[types.ID]booking.Booking
	seq      int
	reserves int
	queryErr error
}

func newMemBackend(loc *time.Location) *memBackend {
	return &memBackend{loc: loc, rides: map[types.ID]ride.Ride{}, bookings: map[types.ID]booking.Booking{}}
}

func (m *memBackend) nextID(prefix string) types.ID {
	m.seq++
	return types.ID(fmt.Sprintf("%s%03d", prefix, m.seq))
}

func (m *memBackend) seed(r ride.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Status == "" {
		r.Status = ride.StatusActive
	}
	if r.TotalSeats == 0 {
		r.TotalSeats = r.Seats
	}
	m.rides[r.ID] = r
}

func (m *memBackend) ride(id types.ID) ride.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rides[id]
}

func (m *memBackend) booking(id types.ID) booking.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id]
}

func (m *memBackend) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

// ride.Repository and RideRepository

func (m *memBackend) Create(_ context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextID("ride")
	m.rides[r.ID] = *r
	return nil
}

func (m *memBackend) Get(_ context.Context, id types.ID) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return &r, nil
}

func (m *memBackend) ListByDriver(_ context.Context, driverID types.ID) ([]ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ride.Ride
	for _, r := range m.rides {
		if r.DriverID == driverID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memBackend) Update(_ context.Context, id types.ID, mutate func(*ride.Ride) error) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	if err := mutate(&r); err != nil {
		return nil, err
	}
	m.rides[id] = r
	return &r, nil
}

func (m *memBackend) QueryActive(_ context.Context, day *time.Time) ([]ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []ride.Ride
	for _, r := range m.rides {
		if r.Status != ride.StatusActive {
			continue
		}
		if day != nil {
			start, end := ride.DayWindow(*day, m.loc)
			if r.DateTime.Before(start) || r.DateTime.After(end) {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memBackend) UpdateStatus(_ context.Context, id types.ID, to ride.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ride.ErrNotFound
	}
	r.Status = to
	m.rides[id] = r
	return nil
}

// memBookings adapts memBackend to BookingRepository; its Get and
// UpdateStatus act on bookings rather than rides.
type memBookings struct{ *memBackend }

func (b memBookings) Get(_ context.Context, id types.ID) (*booking.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &bk, nil
}

func (b memBookings) ListActiveByRide(_ context.Context, rideID types.ID) ([]booking.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []booking.Booking
	for _, bk := range b.bookings {
		if bk.RideID == rideID && bk.Status == booking.StatusActive {
			out = append(out, bk)
		}
	}
	return out, nil
}

func (b memBookings) Reserve(_ context.Context, bk *booking.Booking) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserves++
	r, ok := b.rides[bk.RideID]
	if !ok {
		return 0, booking.ErrRideNotFound
	}
	if r.Status != ride.StatusActive {
		return 0, booking.ErrRideNotActive
	}
	if bk.Seats > r.Seats {
		return 0, booking.ErrInsufficientSeats
	}
	r.Seats -= bk.Seats
	b.rides[r.ID] = r
	bk.ID = b.nextID("bk")
	b.bookings[bk.ID] = *bk
	return r.Seats, nil
}

func (b memBookings) Release(_ context.Context, id types.ID) (*booking.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	if bk.Status != booking.StatusActive {
		return nil, booking.ErrInvalidState
	}
	bk.Status = booking.StatusCancelled
	b.bookings[id] = bk
	if r, ok := b.rides[bk.RideID]; ok && r.Status == ride.StatusActive {
		r.Seats = min(r.Seats+bk.Seats, r.TotalSeats)
		b.rides[r.ID] = r
	}
	return &bk, nil
}

func (b memBookings) UpdateStatus(_ context.Context, id types.ID, to booking.Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.bookings[id]
	if !ok {
		return booking.ErrNotFound
	}
	bk.Status = to
	b.bookings[id] = bk
	return nil
}

// ---------------------------------------------------------------------------
// Collaborator fakes
// ---------------------------------------------------------------------------

type sentNotification struct {
	uid     types.ID
	kind    notify.Kind
	payload notify.Payload
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, uid types.ID, kind notify.Kind, p notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{uid: uid, kind: kind, payload: p})
	return nil
}

func (f *fakeNotifier) NotifyMany(ctx context.Context, uids []types.ID, kind notify.Kind, p notify.Payload) error {
	var errs []error
	for _, uid := range uids {
		if err := f.Notify(ctx, uid, kind, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fakeNotifier) byKind(kind notify.Kind) []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNotification
	for _, n := range f.sent {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type fakeProfiles map[types.ID]*profile.Profile

func (f fakeProfiles) Get(_ context.Context, uid types.ID) (*profile.Profile, error) {
	p, ok := f[uid]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return p, nil
}

type fakeRoutes struct {
	mu    sync.Mutex
	calls int
	route maps.Route
}

func (f *fakeRoutes) Route(_ context.Context, _, _ *types.Point) maps.Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.route
}

type fakeHistory struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (f *fakeHistory) Record(_ context.Context, e history.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeHistory) ForRide(_ context.Context, rideID types.ID) ([]history.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []history.Event
	for _, e := range f.events {
		if e.RideID == rideID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	svc      *Service
	backend  *memBackend
	notifier *fakeNotifier
	routes   *fakeRoutes
	history  *fakeHistory
}

var ist = time.FixedZone("IST", 5*3600+1800)

func newHarness(opts Options) *harness {
	backend := newMemBackend(ist)
	h := &harness{
		backend:  backend,
		notifier: &fakeNotifier{},
		routes:   &fakeRoutes{route: maps.Route{Geometry: []types.Point{{Lat: 12.95, Lng: 77.60}}, DistanceMeters: 8000, DurationSeconds: 900}},
		history:  &fakeHistory{},
	}
	h.svc = NewService(Deps{
		Rides:    backend,
		Editor:   ride.NewService(backend),
		Bookings: memBookings{backend},
		Profiles: fakeProfiles{"driver1": {FullName: "Ravi Kumar"}},
		Notifier: h.notifier,
		Routes:   h.routes,
		History:  h.history,
	}, opts)
	h.svc.now = func() time.Time { return bookedAt }
	return h
}

var bookedAt = time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)

func pt(lat, lng float64) *types.Point {
	return &types.Point{Lat: lat, Lng: lng}
}

func rideA() ride.Ride {
	return ride.Ride{
		ID:                  "rideA",
		DriverID:            "driver1",
		DriverEmail:         "ravi@example.com",
		Source:              "Koramangala",
		SourceLocation:      pt(12.95, 77.60),
		Destination:         "HSR Layout",
		DestinationLocation: pt(12.90, 77.65),
		DateTime:            time.Date(2025, 6, 1, 9, 0, 0, 0, ist),
		Seats:               3,
		Price:               150,
	}
}

func passenger(id string) types.Identity {
	return types.Identity{ID: types.ID(id), Email: id + "@example.com"}
}

// metersNorth returns the latitude d meters north of lat along a meridian.
func metersNorth(lat, d float64) float64 {
	return lat + d/6371000.0*180/math.Pi
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearch_EndToEndScenario(t *testing.T) {
	h := newHarness(Options{RestoreSeatsOnCancel: true})
	h.backend.seed(rideA())
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, ist)

	res, err := h.svc.Search(ctx, SearchQuery{Source: pt(12.951, 77.601), Destination: pt(12.901, 77.651), Date: &day})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].Ride.ID != "rideA" {
		t.Fatalf("expected ride A, got %+v", res.Matches)
	}
	m := res.Matches[0]
	if m.SourceDistance >= ProximityThresholdMeters || m.DestinationDistance >= ProximityThresholdMeters {
		t.Errorf("distances should be under the threshold: %+v", m)
	}
	if res.Route == nil || res.Route.DistanceMeters != 8000 {
		t.Errorf("expected display route, got %+v", res.Route)
	}

	out, err := h.svc.Book(ctx, BookCommand{RideID: "rideA", Seats: 2, Passenger: passenger("p1")})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if out.RemainingSeats != 1 || h.backend.ride("rideA").Seats != 1 {
		t.Fatalf("expected 1 seat left, got %d", out.RemainingSeats)
	}

	_, err = h.svc.Book(ctx, BookCommand{RideID: "rideA", Seats: 2, Passenger: passenger("p2")})
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if h.backend.ride("rideA").Seats != 1 || h.backend.bookingCount() != 1 {
		t.Fatal("failed booking must not write")
	}
}

func TestSearch_ThresholdBoundary(t *testing.T) {
	if !withinThreshold(ProximityThresholdMeters) {
		t.Error("exactly 2000 m must match")
	}
	if withinThreshold(math.Nextafter(ProximityThresholdMeters, math.Inf(1))) {
		t.Error("just over 2000 m must not match")
	}

	h := newHarness(Options{})
	base := rideA()
	src, dst := *base.SourceLocation, *base.DestinationLocation
	near := base
	near.ID = "near"
	near.SourceLocation = pt(metersNorth(src.Lat, 1999), src.Lng)
	far := base
	far.ID = "far"
	far.SourceLocation = pt(metersNorth(src.Lat, 2001), src.Lng)
	farDest := base
	farDest.ID = "farDest"
	farDest.DestinationLocation = pt(metersNorth(dst.Lat, 2001), dst.Lng)
	h.backend.seed(near)
	h.backend.seed(far)
	h.backend.seed(farDest)

	res, err := h.svc.Search(context.Background(), SearchQuery{Source: &src, Destination: &dst})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].Ride.ID != "near" {
		t.Fatalf("expected only the 1999 m ride, got %+v", res.Matches)
	}
}

func TestSearch_OrderingIsDeterministic(t *testing.T) {
	h := newHarness(Options{})
	base := rideA()
	src, dst := *base.SourceLocation, *base.DestinationLocation

	for _, c := range []struct {
		id     types.ID
		offset float64
	}{{"r-c", 500}, {"r-b", 100}, {"r-a", 500}, {"r-d", 0}} {
		r := base
		r.ID = c.id
		r.SourceLocation = pt(metersNorth(src.Lat, c.offset), src.Lng)
		h.backend.seed(r)
	}

	res, err := h.svc.Search(context.Background(), SearchQuery{Source: &src, Destination: &dst})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []types.ID{"r-d", "r-b", "r-a", "r-c"}
	if len(res.Matches) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(res.Matches))
	}
	for i, id := range want {
		if res.Matches[i].Ride.ID != id {
			t.Errorf("position %d: got %s, want %s", i, res.Matches[i].Ride.ID, id)
		}
	}
}

func TestSearch_DateWindow(t *testing.T) {
	h := newHarness(Options{})
	sameDay := rideA()
	sameDay.ID = "morning"
	sameDay.DateTime = time.Date(2025, 6, 1, 0, 0, 1, 0, ist)
	nextDay := rideA()
	nextDay.ID = "nextday"
	nextDay.DateTime = time.Date(2025, 6, 2, 23, 59, 0, 0, ist)
	h.backend.seed(sameDay)
	h.backend.seed(nextDay)

	day := time.Date(2025, 6, 1, 12, 0, 0, 0, ist)
	res, err := h.svc.Search(context.Background(), SearchQuery{Source: pt(12.951, 77.601), Destination: pt(12.901, 77.651), Date: &day})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].Ride.ID != "morning" {
		t.Fatalf("expected only the 1 June ride, got %+v", res.Matches)
	}

	res, _ = h.svc.Search(context.Background(), SearchQuery{Source: pt(12.951, 77.601), Destination: pt(12.901, 77.651)})
	if len(res.Matches) != 2 {
		t.Fatalf("without a date both rides match, got %d", len(res.Matches))
	}
}

func TestSearch_SkipsInactiveAndMalformed(t *testing.T) {
	h := newHarness(Options{})
	cancelled := rideA()
	cancelled.ID = "cancelled"
	cancelled.Status = ride.StatusCancelled
	malformed := rideA()
	malformed.ID = "malformed"
	malformed.DestinationLocation = nil
	nan := rideA()
	nan.ID = "nan"
	nan.SourceLocation = pt(math.NaN(), 77.60)
	h.backend.seed(cancelled)
	h.backend.seed(malformed)
	h.backend.seed(nan)

	res, err := h.svc.Search(context.Background(), SearchQuery{Source: pt(12.951, 77.601), Destination: pt(12.901, 77.651)})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Fatalf("expected no matches, got %+v", res.Matches)
	}
	if res.Route != nil || h.routes.calls != 0 {
		t.Error("no route should be fetched without matches")
	}
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name     string
		src, dst *types.Point
	}{
		{"missing source", nil, pt(12.90, 77.65)},
		{"missing destination", pt(12.95, 77.60), nil},
		{"infinite", pt(math.Inf(1), 77.60), pt(12.90, 77.65)},
		{"outside region", pt(13.08, 80.27), pt(12.90, 77.65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Options{})
			h.backend.queryErr = errors.New("backend must not be called")
			_, err := h.svc.Search(context.Background(), SearchQuery{Source: tt.src, Destination: tt.dst})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSearch_RouteFailureKeepsMatches(t *testing.T) {
	h := newHarness(Options{})
	h.routes.route = maps.Route{}
	h.backend.seed(rideA())

	res, err := h.svc.Search(context.Background(), SearchQuery{Source: pt(12.951, 77.601), Destination: pt(12.901, 77.651)})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 1 || res.Route != nil {
		t.Fatalf("expected match without route, got %+v", res)
	}
}

func TestSearch_BackendErrorPropagates(t *testing.T) {
	h := newHarness(Options{})
	h.backend.queryErr = ride.ErrBackendRead
	_, err := h.svc.Search(context.Background(), SearchQuery{Source: pt(12.951, 77.601), Destination: pt(12.901, 77.651)})
	if !errors.Is(err, ride.ErrBackendRead) {
		t.Fatalf("expected ErrBackendRead, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Book
// ---------------------------------------------------------------------------

func TestBook_CapacityFailureWritesNothing(t *testing.T) {
	h := newHarness(Options{})
	h.backend.seed(rideA())

	_, err := h.svc.Book(context.Background(), BookCommand{RideID: "rideA", Seats: 4, Passenger: passenger("p1")})
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if h.backend.reserves != 0 || h.backend.bookingCount() != 0 || h.backend.ride("rideA").Seats != 3 {
		t.Fatal("capacity failure must not write")
	}
	if len(h.notifier.sent) != 0 || len(h.history.events) != 0 {
		t.Fatal("capacity failure must not notify or record")
	}
}

func TestBook_MoreThanVehicleCapacityIsCapacityFailure(t *testing.T) {
	h := newHarness(Options{})
	h.backend.seed(rideA())

	_, err := h.svc.Book(context.Background(), BookCommand{RideID: "rideA", Seats: ride.MaxSeats + 1, Passenger: passenger("p1")})
	if !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("capacity failure reported as validation: %v", err)
	}
	if h.backend.reserves != 0 || h.backend.bookingCount() != 0 || h.backend.ride("rideA").Seats != 3 {
		t.Fatal("capacity failure must not write")
	}
}

func TestBook_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     BookCommand
		wantErr error
	}{
		{"zero seats", BookCommand{RideID: "rideA", Seats: 0, Passenger: passenger("p1")}, ErrValidation},
		{"anonymous", BookCommand{RideID: "rideA", Seats: 1}, ErrValidation},
		{"own ride", BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger("driver1")}, ErrValidation},
		{"unknown ride", BookCommand{RideID: "nope", Seats: 1, Passenger: passenger("p1")}, ride.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Options{})
			h.backend.seed(rideA())
			_, err := h.svc.Book(context.Background(), tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if h.backend.bookingCount() != 0 {
				t.Fatal("nothing should be written")
			}
		})
	}
}

func TestBook_InactiveRide(t *testing.T) {
	h := newHarness(Options{})
	r := rideA()
	r.Status = ride.StatusCompleted
	h.backend.seed(r)
	_, err := h.svc.Book(context.Background(), BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger("p1")})
	if !errors.Is(err, ErrRideNotActive) {
		t.Fatalf("expected ErrRideNotActive, got %v", err)
	}
}

func TestBook_NotifiesDriverAndRecords(t *testing.T) {
	h := newHarness(Options{})
	h.backend.seed(rideA())

	out, err := h.svc.Book(context.Background(), BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger("p1")})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	b := h.backend.booking(out.Booking.ID)
	if b.Source != "Koramangala" || b.Destination != "HSR Layout" || !b.DateTime.Equal(rideA().DateTime) {
		t.Errorf("booking snapshot missing: %+v", b)
	}
	if !out.Booking.CreatedAt.Equal(bookedAt) || !out.Booking.UpdatedAt.Equal(bookedAt) {
		t.Errorf("returned booking not stamped: %v / %v", out.Booking.CreatedAt, out.Booking.UpdatedAt)
	}

	sent := h.notifier.byKind(notify.KindBookingConfirmation)
	if len(sent) != 1 || sent[0].uid != "driver1" {
		t.Fatalf("expected one confirmation to the driver, got %+v", sent)
	}
	if sent[0].payload.Extra["driverName"] != "Ravi Kumar" || sent[0].payload.Extra["seats"] != "1" {
		t.Errorf("unexpected payload %+v", sent[0].payload.Extra)
	}
	if len(h.history.events) != 1 || h.history.events[0].Entity != history.EntityBooking {
		t.Errorf("expected one booking event, got %+v", h.history.events)
	}
}

func TestBook_DriverNameFallsBackToEmail(t *testing.T) {
	h := newHarness(Options{})
	r := rideA()
	r.DriverID = "driver-without-profile"
	h.backend.seed(r)

	if _, err := h.svc.Book(context.Background(), BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger("p1")}); err != nil {
		t.Fatalf("Book: %v", err)
	}
	sent := h.notifier.byKind(notify.KindBookingConfirmation)
	if len(sent) != 1 || sent[0].payload.Extra["driverName"] != "ravi@example.com" {
		t.Fatalf("expected email fallback, got %+v", sent)
	}
}

func TestBook_NotificationAndHistoryFailuresAreSwallowed(t *testing.T) {
	h := newHarness(Options{})
	h.notifier.err = errors.New("fcm down")
	h.history.err = errors.New("postgres down")
	h.backend.seed(rideA())

	out, err := h.svc.Book(context.Background(), BookCommand{RideID: "rideA", Seats: 2, Passenger: passenger("p1")})
	if err != nil {
		t.Fatalf("Book should succeed despite side-channel failures: %v", err)
	}
	if out.RemainingSeats != 1 {
		t.Fatalf("remaining = %d, want 1", out.RemainingSeats)
	}
}

func TestBook_ConcurrentNeverOversells(t *testing.T) {
	h := newHarness(Options{})
	h.backend.seed(rideA())

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := h.svc.Book(context.Background(), BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger(fmt.Sprintf("p%d", i))})
			errs <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrInsufficientCapacity) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 3 {
		t.Fatalf("expected exactly 3 bookings, got %d", success)
	}
	if h.backend.ride("rideA").Seats != 0 {
		t.Fatalf("seats = %d, want 0", h.backend.ride("rideA").Seats)
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestCancelBooking_RestorePolicy(t *testing.T) {
	tests := []struct {
		name      string
		restore   bool
		wantSeats int
	}{
		{"restore on", true, 3},
		{"restore off", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Options{RestoreSeatsOnCancel: tt.restore})
			h.backend.seed(rideA())
			ctx := context.Background()

			out, err := h.svc.Book(ctx, BookCommand{RideID: "rideA", Seats: 2, Passenger: passenger("p1")})
			if err != nil {
				t.Fatalf("Book: %v", err)
			}
			b, err := h.svc.CancelBooking(ctx, CancelBookingCommand{BookingID: out.Booking.ID, ActorID: "p1"})
			if err != nil {
				t.Fatalf("CancelBooking: %v", err)
			}
			if b.Status != booking.StatusCancelled || h.backend.booking(out.Booking.ID).Status != booking.StatusCancelled {
				t.Fatal("booking should be cancelled")
			}
			if got := h.backend.ride("rideA").Seats; got != tt.wantSeats {
				t.Fatalf("seats = %d, want %d", got, tt.wantSeats)
			}
		})
	}
}

func TestCancelBooking_Guards(t *testing.T) {
	h := newHarness(Options{RestoreSeatsOnCancel: true})
	h.backend.seed(rideA())
	ctx := context.Background()
	out, err := h.svc.Book(ctx, BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger("p1")})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if _, err := h.svc.CancelBooking(ctx, CancelBookingCommand{BookingID: out.Booking.ID, ActorID: "p2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := h.svc.CancelBooking(ctx, CancelBookingCommand{BookingID: out.Booking.ID, ActorID: "p1"}); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if _, err := h.svc.CancelBooking(ctx, CancelBookingCommand{BookingID: out.Booking.ID, ActorID: "p1"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second cancel, got %v", err)
	}
	if h.backend.ride("rideA").Seats != 3 {
		t.Fatal("seats must be restored only once")
	}
	if _, err := h.svc.CancelBooking(ctx, CancelBookingCommand{BookingID: "missing", ActorID: "p1"}); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected booking.ErrNotFound, got %v", err)
	}
}

func TestCancelRide(t *testing.T) {
	h := newHarness(Options{})
	h.backend.seed(rideA())
	ctx := context.Background()
	for _, p := range []string{"p1", "p2"} {
		if _, err := h.svc.Book(ctx, BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger(p)}); err != nil {
			t.Fatalf("Book %s: %v", p, err)
		}
	}

	if err := h.svc.CancelRide(ctx, CancelRideCommand{RideID: "rideA", ActorID: "p1"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := h.svc.CancelRide(ctx, CancelRideCommand{RideID: "rideA", ActorID: "driver1"}); err != nil {
		t.Fatalf("CancelRide: %v", err)
	}
	if h.backend.ride("rideA").Status != ride.StatusCancelled {
		t.Fatal("ride should be cancelled")
	}
	sent := h.notifier.byKind(notify.KindRideCancellation)
	if len(sent) != 2 {
		t.Fatalf("expected both passengers notified, got %d", len(sent))
	}
	if err := h.svc.CancelRide(ctx, CancelRideCommand{RideID: "rideA", ActorID: "driver1"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	events, err := h.svc.RideHistory(ctx, "rideA", "driver1")
	if err != nil {
		t.Fatalf("RideHistory: %v", err)
	}
	last := events[len(events)-1]
	if last.Entity != history.EntityRide || last.ToStatus != string(ride.StatusCancelled) {
		t.Errorf("expected ride cancellation event last, got %+v", last)
	}
}

func TestCancelRide_NotificationFailureSwallowed(t *testing.T) {
	h := newHarness(Options{})
	h.backend.seed(rideA())
	ctx := context.Background()
	if _, err := h.svc.Book(ctx, BookCommand{RideID: "rideA", Seats: 1, Passenger: passenger("p1")}); err != nil {
		t.Fatalf("Book: %v", err)
	}
	h.notifier.err = errors.New("fcm down")
	if err := h.svc.CancelRide(ctx, CancelRideCommand{RideID: "rideA", ActorID: "driver1"}); err != nil {
		t.Fatalf("CancelRide: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Ride edits, messages, history
// ---------------------------------------------------------------------------

func TestUpdateRideNotifiesPassengers(t *testing.T) {
	h := newHarness(Options{})
	r := rideA()
	r.DateTime = time.Now().Add(48 * time.Hour)
	h.backend.seed(r)
	ctx := context.Background()
	if _, err := h.svc.Book(ctx, BookCommand{RideID: "rideA", Seats: 2, Passenger: passenger("p1")}); err != nil {
		t.Fatalf("Book: %v", err)
	}

	total := 2
	updated, err := h.svc.UpdateRide(ctx, ride.UpdateCommand{RideID: "rideA", DriverID: "driver1", Patch: ride.Patch{TotalSeats: &total}})
	if err != nil {
		t.Fatalf("UpdateRide: %v", err)
	}
	if updated.TotalSeats != 2 || updated.Seats != 0 {
		t.Fatalf("seats = %d/%d, want 0/2", updated.Seats, updated.TotalSeats)
	}
	sent := h.notifier.byKind(notify.KindRideUpdate)
	if len(sent) != 1 || sent[0].uid != "p1" {
		t.Fatalf("expected p1 notified, got %+v", sent)
	}

	total = 1
	if _, err := h.svc.UpdateRide(ctx, ride.UpdateCommand{RideID: "rideA", DriverID: "driver1", Patch: ride.Patch{TotalSeats: &total}}); !errors.Is(err, ride.ErrValidation) {
		t.Fatalf("expected ride.ErrValidation, got %v", err)
	}
}

func TestCreateRideRecordsHistory(t *testing.T) {
	h := newHarness(Options{})
	r, err := h.svc.CreateRide(context.Background(), ride.CreateCommand{
		Driver:              types.Identity{ID: "driver1", Email: "ravi@example.com"},
		Source:              "Indiranagar",
		SourceLocation:      pt(12.97, 77.64),
		Destination:         "Whitefield",
		DestinationLocation: pt(12.97, 77.74),
		DateTime:            time.Now().Add(24 * time.Hour),
		Seats:               4,
		Price:               200,
		CarModel:            "Innova",
		CarNumber:           "KA05MN4321",
	})
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	if h.backend.ride(r.ID).Status != ride.StatusActive {
		t.Fatal("ride should be stored active")
	}
	if len(h.history.events) != 1 || h.history.events[0].Seats != 4 {
		t.Fatalf("unexpected history %+v", h.history.events)
	}
}

func TestSendMessage(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	from := types.Identity{ID: "driver1", Email: "ravi@example.com"}

	if err := h.svc.SendMessage(ctx, MessageCommand{From: from, To: "p1", Text: " running 5 min late "}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	sent := h.notifier.byKind(notify.KindNewMessage)
	if len(sent) != 1 || sent[0].payload.SenderName != "Ravi Kumar" || sent[0].payload.Extra["text"] != "running 5 min late" {
		t.Fatalf("unexpected message %+v", sent)
	}

	for name, cmd := range map[string]MessageCommand{
		"empty":    {From: from, To: "p1", Text: "  "},
		"to self":  {From: from, To: "driver1", Text: "hi"},
		"no recip": {From: from, Text: "hi"},
	} {
		if err := h.svc.SendMessage(ctx, cmd); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", name, err)
		}
	}

	h.notifier.err = errors.New("no channel")
	if err := h.svc.SendMessage(ctx, MessageCommand{From: from, To: "p1", Text: "hi"}); !errors.Is(err, ErrNotDelivered) {
		t.Fatalf("expected ErrNotDelivered, got %v", err)
	}
}

func TestRideHistoryDriverOnly(t *testing.T) {
	h := newHarness(Options{})
	h.backend.seed(rideA())
	if _, err := h.svc.RideHistory(context.Background(), "rideA", "p1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := h.svc.RideHistory(context.Background(), "missing", "driver1"); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("expected ride.ErrNotFound, got %v", err)
	}
}
