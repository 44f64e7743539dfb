// README: Ride handlers: search, offer, edit, cancel, history and booking.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/booking"
	"ridepool/internal/modules/history"
	"ridepool/internal/modules/matching"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

// Matcher is the ride matcher as seen by the HTTP layer; *matching.Service implements it.
type Matcher interface {
	Search(ctx context.Context, q matching.SearchQuery) (*matching.SearchResult, error)
	Book(ctx context.Context, cmd matching.BookCommand) (*matching.BookResult, error)
	CreateRide(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	UpdateRide(ctx context.Context, cmd ride.UpdateCommand) (*ride.Ride, error)
	CancelRide(ctx context.Context, cmd matching.CancelRideCommand) error
	CancelBooking(ctx context.Context, cmd matching.CancelBookingCommand) (*booking.Booking, error)
	SendMessage(ctx context.Context, cmd matching.MessageCommand) error
	RideHistory(ctx context.Context, rideID, actorID types.ID) ([]history.Event, error)
}

type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]ride.Ride, error)
}

type RideHandler struct {
	matcher Matcher
	rides   RideReader
	loc     *time.Location
}

// NewRideHandler creates a RideHandler; loc is the zone search dates are read in.
func NewRideHandler(matcher Matcher, rides RideReader, loc *time.Location) *RideHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &RideHandler{matcher: matcher, rides: rides, loc: loc}
}

type pointReq struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

func (p *pointReq) point() *types.Point {
	if p == nil {
		return nil
	}
	return &types.Point{Lat: p.Lat, Lng: p.Lng}
}

type searchReq struct {
	Source      *pointReq `json:"source" validate:"required"`
	Destination *pointReq `json:"destination" validate:"required"`
	Date        string    `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// Search handles POST /api/rides/search.
func (h *RideHandler) Search(c *gin.Context) {
	var req searchReq
	if !bindJSON(c, &req) {
		return
	}
	q := matching.SearchQuery{Source: req.Source.point(), Destination: req.Destination.point()}
	if req.Date != "" {
		day, err := time.ParseInLocation(time.DateOnly, req.Date, h.loc)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid date")
			return
		}
		q.Date = &day
	}
	res, err := h.matcher.Search(c.Request.Context(), q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

type createRideReq struct {
	Source              string    `json:"source" validate:"required"`
	SourceLocation      *pointReq `json:"sourceLocation" validate:"required"`
	Destination         string    `json:"destination" validate:"required"`
	DestinationLocation *pointReq `json:"destinationLocation" validate:"required"`
	DateTime            time.Time `json:"dateTime" validate:"required"`
	Seats               int       `json:"seats" validate:"min=1,max=6"`
	Price               float64   `json:"price" validate:"gt=0"`
	CarModel            string    `json:"carModel" validate:"required"`
	CarNumber           string    `json:"carNumber" validate:"required,plate"`
	IsRecurring         bool      `json:"isRecurring"`
	RecurringDays       []string  `json:"recurringDays" validate:"omitempty,dive,weekday"`
}

// Create handles POST /api/rides.
func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := ride.CreateCommand{
		Driver:              middleware.CallerIdentity(c),
		Source:              req.Source,
		SourceLocation:      req.SourceLocation.point(),
		Destination:         req.Destination,
		DestinationLocation: req.DestinationLocation.point(),
		DateTime:            req.DateTime,
		Seats:               req.Seats,
		Price:               req.Price,
		CarModel:            req.CarModel,
		CarNumber:           req.CarNumber,
		IsRecurring:         req.IsRecurring,
	}
	if req.IsRecurring {
		days := ride.RecurrenceFromNames(lower(req.RecurringDays))
		cmd.RecurringDays = &days
	}
	r, err := h.matcher.CreateRide(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// Mine handles GET /api/rides/mine.
func (h *RideHandler) Mine(c *gin.Context) {
	rides, err := h.rides.ListByDriver(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if rides == nil {
		rides = []ride.Ride{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"rides": rides})
}

// Get handles GET /api/rides/:id.
func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type updateRideReq struct {
	DateTime      *time.Time `json:"dateTime"`
	Price         *float64   `json:"price" validate:"omitempty,gt=0"`
	CarModel      *string    `json:"carModel"`
	CarNumber     *string    `json:"carNumber" validate:"omitempty,plate"`
	Seats         *int       `json:"seats" validate:"omitempty,min=1,max=6"`
	IsRecurring   *bool      `json:"isRecurring"`
	RecurringDays []string   `json:"recurringDays" validate:"omitempty,dive,weekday"`
}

// Update handles PUT /api/rides/:id.
func (h *RideHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateRideReq
	if !bindJSON(c, &req) {
		return
	}
	patch := ride.Patch{
		DateTime:    req.DateTime,
		Price:       req.Price,
		CarModel:    req.CarModel,
		CarNumber:   req.CarNumber,
		TotalSeats:  req.Seats,
		IsRecurring: req.IsRecurring,
	}
	if req.RecurringDays != nil {
		days := ride.RecurrenceFromNames(lower(req.RecurringDays))
		patch.RecurringDays = &days
	}
	r, err := h.matcher.UpdateRide(c.Request.Context(), ride.UpdateCommand{
		RideID:   id,
		DriverID: types.ID(middleware.CallerUID(c)),
		Patch:    patch,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Cancel handles POST /api/rides/:id/cancel.
func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.matcher.CancelRide(c.Request.Context(), matching.CancelRideCommand{
		RideID:  id,
		ActorID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"id": id, "status": ride.StatusCancelled})
}

// History handles GET /api/rides/:id/history.
func (h *RideHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.matcher.RideHistory(c.Request.Context(), id, types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"events": events})
}

type bookReq struct {
	Seats int `json:"seats" validate:"min=1"`
}

// Book handles POST /api/rides/:id/bookings.
func (h *RideHandler) Book(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req bookReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.matcher.Book(c.Request.Context(), matching.BookCommand{
		RideID:    id,
		Seats:     req.Seats,
		Passenger: middleware.CallerIdentity(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}
