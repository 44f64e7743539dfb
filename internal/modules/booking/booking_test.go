package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

func TestTakeSeats(t *testing.T) {
	tests := []struct {
		name    string
		ride    ride.Ride
		n       int
		want    int
		wantErr error
	}{
		{"partial", ride.Ride{Status: ride.StatusActive, Seats: 3, TotalSeats: 3}, 2, 1, nil},
		{"exact", ride.Ride{Status: ride.StatusActive, Seats: 2, TotalSeats: 3}, 2, 0, nil},
		{"too many", ride.Ride{Status: ride.StatusActive, Seats: 1, TotalSeats: 3}, 2, 0, ErrInsufficientSeats},
		{"full ride", ride.Ride{Status: ride.StatusActive, Seats: 0, TotalSeats: 3}, 1, 0, ErrInsufficientSeats},
		{"cancelled ride", ride.Ride{Status: ride.StatusCancelled, Seats: 3, TotalSeats: 3}, 1, 0, ErrRideNotActive},
		{"zero seats requested", ride.Ride{Status: ride.StatusActive, Seats: 3, TotalSeats: 3}, 0, 0, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := takeSeats(&tt.ride, tt.n)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("remaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReturnSeats(t *testing.T) {
	tests := []struct {
		name string
		ride ride.Ride
		n    int
		want int
	}{
		{"restores", ride.Ride{Seats: 1, TotalSeats: 3}, 2, 3},
		{"capped at capacity", ride.Ride{Seats: 2, TotalSeats: 3}, 2, 3},
		{"no capacity recorded", ride.Ride{Seats: 2}, 2, 4},
	}
	for _, tt := range tests {
		if got := returnSeats(&tt.ride, tt.n); got != tt.want {
			t.Errorf("%s: returnSeats = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusActive, StatusCancelled) {
		t.Error("active bookings should be cancellable")
	}
	if CanTransition(StatusCancelled, StatusCancelled) {
		t.Error("cancelled bookings are terminal")
	}
	if CanTransition(StatusCancelled, StatusActive) {
		t.Error("cancelled bookings cannot be revived")
	}
}

func TestNewSnapshotsRide(t *testing.T) {
	r := &ride.Ride{ID: "r1", Source: "Indiranagar", Destination: "Whitefield"}
	at := time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)
	b := New(r, types.Identity{ID: "p1", Email: "p@example.com"}, 2, at)
	if b.RideID != "r1" || b.Source != "Indiranagar" || b.Destination != "Whitefield" {
		t.Fatalf("unexpected snapshot %+v", b)
	}
	if b.Status != StatusActive || b.Seats != 2 || b.PassengerEmail != "p@example.com" {
		t.Fatalf("unexpected booking %+v", b)
	}
	if !b.CreatedAt.Equal(at) || !b.UpdatedAt.Equal(at) {
		t.Errorf("expected timestamps %v, got %v / %v", at, b.CreatedAt, b.UpdatedAt)
	}
}

type fakeLister struct {
	bookings []Booking
	err      error
}

func (f *fakeLister) ListByPassenger(_ context.Context, passengerID types.ID) ([]Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Booking
	for _, b := range f.bookings {
		if b.PassengerID == passengerID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeRides struct {
	mu    sync.Mutex
	rides map[types.ID]*ride.Ride
	calls int
}

func (f *fakeRides) Get(_ context.Context, id types.ID) (*ride.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r, ok := f.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return r, nil
}

func TestListByPassengerEnrichesRides(t *testing.T) {
	lister := &fakeLister{bookings: []Booking{
		{ID: "b1", RideID: "r1", PassengerID: "p1"},
		{ID: "b2", RideID: "gone", PassengerID: "p1"},
		{ID: "b3", RideID: "r1", PassengerID: "someone-else"},
	}}
	rides := &fakeRides{rides: map[types.ID]*ride.Ride{
		"r1": {ID: "r1", Status: ride.StatusCancelled, DriverEmail: "d@example.com"},
	}}
	svc := NewService(lister, rides)

	views, err := svc.ListByPassenger(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListByPassenger: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(views))
	}
	if views[0].ID != "b1" || views[0].Ride == nil || views[0].Ride.Status != ride.StatusCancelled {
		t.Errorf("first view not enriched: %+v", views[0])
	}
	if views[1].ID != "b2" || views[1].Ride != nil {
		t.Errorf("missing ride should leave Ride nil: %+v", views[1])
	}
	if rides.calls != 2 {
		t.Errorf("expected 2 ride lookups, got %d", rides.calls)
	}
}

func TestListByPassengerPropagatesStoreError(t *testing.T) {
	svc := NewService(&fakeLister{err: ErrBackendRead}, &fakeRides{})
	if _, err := svc.ListByPassenger(context.Background(), "p1"); !errors.Is(err, ErrBackendRead) {
		t.Fatalf("expected ErrBackendRead, got %v", err)
	}
}
