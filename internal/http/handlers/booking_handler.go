// README: Booking handlers for the passenger's own bookings.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/booking"
	"ridepool/internal/modules/matching"
	"ridepool/internal/types"
)

type BookingLister interface {
	ListByPassenger(ctx context.Context, passengerID types.ID) ([]booking.View, error)
}

type BookingHandler struct {
	matcher  Matcher
	bookings BookingLister
}

func NewBookingHandler(matcher Matcher, bookings BookingLister) *BookingHandler {
	return &BookingHandler{matcher: matcher, bookings: bookings}
}

// Mine handles GET /api/bookings/mine.
func (h *BookingHandler) Mine(c *gin.Context) {
	views, err := h.bookings.ListByPassenger(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if views == nil {
		views = []booking.View{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"bookings": views})
}

// Cancel handles POST /api/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := h.matcher.CancelBooking(c.Request.Context(), matching.CancelBookingCommand{
		BookingID: id,
		ActorID:   types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}
