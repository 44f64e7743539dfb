// README: Ride offer aggregate, recurrence and status definitions.
package ride

import (
	"time"

	"ridepool/internal/types"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// MaxSeats is the largest capacity a driver may offer.
const MaxSeats = 6

// Recurrence marks the weekdays a ride repeats on.
type Recurrence struct {
	Monday    bool `json:"monday" firestore:"monday"`
	Tuesday   bool `json:"tuesday" firestore:"tuesday"`
	Wednesday bool `json:"wednesday" firestore:"wednesday"`
	Thursday  bool `json:"thursday" firestore:"thursday"`
	Friday    bool `json:"friday" firestore:"friday"`
	Saturday  bool `json:"saturday" firestore:"saturday"`
	Sunday    bool `json:"sunday" firestore:"sunday"`
}

// RecurrenceFromNames builds a Recurrence from lower-case weekday names.
// Unknown names are ignored.
func RecurrenceFromNames(days []string) Recurrence {
	var r Recurrence
	for _, d := range days {
		switch d {
		case "monday":
			r.Monday = true
		case "tuesday":
			r.Tuesday = true
		case "wednesday":
			r.Wednesday = true
		case "thursday":
			r.Thursday = true
		case "friday":
			r.Friday = true
		case "saturday":
			r.Saturday = true
		case "sunday":
			r.Sunday = true
		}
	}
	return r
}

// Days lists the selected weekdays in calendar order starting Sunday.
func (r Recurrence) Days() []time.Weekday {
	flags := [7]bool{r.Sunday, r.Monday, r.Tuesday, r.Wednesday, r.Thursday, r.Friday, r.Saturday}
	var out []time.Weekday
	for i, on := range flags {
		if on {
			out = append(out, time.Weekday(i))
		}
	}
	return out
}

// Includes reports whether the ride repeats on d.
func (r Recurrence) Includes(d time.Weekday) bool {
	for _, w := range r.Days() {
		if w == d {
			return true
		}
	}
	return false
}

type Ride struct {
	ID                  types.ID     `json:"id" firestore:"-"`
	DriverID            types.ID     `json:"driverId" firestore:"driverId"`
	DriverEmail         string       `json:"driverEmail" firestore:"driverEmail"`
	Source              string       `json:"source" firestore:"source"`
	SourceLocation      *types.Point `json:"sourceLocation" firestore:"sourceLocation"`
	Destination         string       `json:"destination" firestore:"destination"`
	DestinationLocation *types.Point `json:"destinationLocation" firestore:"destinationLocation"`
	DateTime            time.Time    `json:"dateTime" firestore:"dateTime"`
	Seats               int          `json:"seats" firestore:"seats"`
	TotalSeats          int          `json:"totalSeats" firestore:"totalSeats"`
	Price               float64      `json:"price" firestore:"price"`
	CarModel            string       `json:"carModel" firestore:"carModel"`
	CarNumber           string       `json:"carNumber" firestore:"carNumber"`
	Status              Status       `json:"status" firestore:"status"`
	IsRecurring         bool         `json:"isRecurring" firestore:"isRecurring"`
	RecurringDays       *Recurrence  `json:"recurringDays" firestore:"recurringDays"`
	CreatedAt           time.Time    `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt           time.Time    `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// HasEndpoints reports whether both coordinates are present and numeric.
// Records without them are treated as malformed and never matched.
func (r *Ride) HasEndpoints() bool {
	return types.ValidPtr(r.SourceLocation) && types.ValidPtr(r.DestinationLocation)
}

// BookedSeats is the number of seats held by active bookings.
func (r *Ride) BookedSeats() int {
	if r.TotalSeats < r.Seats {
		return 0
	}
	return r.TotalSeats - r.Seats
}

// AllowedTransitions represents the ride state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusActive: {StatusCancelled, StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// DayWindow returns the first and last millisecond of day's calendar date in loc.
func DayWindow(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}

// Patch holds the driver-editable fields of a ride; nil means unchanged.
type Patch struct {
	DateTime      *time.Time
	Price         *float64
	CarModel      *string
	CarNumber     *string
	TotalSeats    *int
	IsRecurring   *bool
	RecurringDays *Recurrence
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.DateTime == nil && p.Price == nil && p.CarModel == nil && p.CarNumber == nil &&
		p.TotalSeats == nil && p.IsRecurring == nil && p.RecurringDays == nil
}
