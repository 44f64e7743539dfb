// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/logging"
	"ridepool/internal/maps"
	"ridepool/internal/modules/aiusage"
	"ridepool/internal/modules/booking"
	"ridepool/internal/modules/matching"
	"ridepool/internal/modules/profile"
	"ridepool/internal/modules/ride"
	"ridepool/internal/service"
	"ridepool/internal/validation"
)

type errorResponse struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

// isValidID accepts Firestore document ids: short and alphanumeric.
func isValidID(v string) bool {
	if v == "" || len(v) > 40 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// bindJSON decodes the body into req and runs its validate tags. It writes
// the 400 itself and reports whether the handler may continue.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := validation.Struct(req); err != nil {
		writeServiceError(c, err)
		return false
	}
	return true
}

var statusByError = []struct {
	status int
	errs   []error
}{
	{http.StatusBadRequest, []error{matching.ErrValidation, ride.ErrValidation, booking.ErrValidation, profile.ErrValidation}},
	{http.StatusNotFound, []error{ride.ErrNotFound, booking.ErrNotFound, booking.ErrRideNotFound, profile.ErrNotFound}},
	{http.StatusForbidden, []error{matching.ErrForbidden, ride.ErrForbidden}},
	{http.StatusConflict, []error{
		matching.ErrInsufficientCapacity, matching.ErrRideNotActive, matching.ErrInvalidState,
		ride.ErrInvalidState, booking.ErrInvalidState, booking.ErrInsufficientSeats, booking.ErrRideNotActive,
	}},
	{http.StatusTooManyRequests, []error{aiusage.ErrInsufficientTokens}},
	{http.StatusBadGateway, []error{maps.ErrUpstreamUnavailable, service.ErrAssistantParse}},
	{http.StatusServiceUnavailable, []error{
		ride.ErrBackendRead, ride.ErrBackendWrite,
		booking.ErrBackendRead, booking.ErrBackendWrite,
		profile.ErrBackendRead, profile.ErrBackendWrite,
		matching.ErrNotDelivered, service.ErrAssistantUnavailable,
	}},
}

func statusFor(err error) int {
	for _, row := range statusByError {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.status
			}
		}
	}
	return http.StatusInternalServerError
}

func writeServiceError(c *gin.Context, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
		return
	}
	status := statusFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		if status == http.StatusInternalServerError {
			writeError(c, status, "internal error")
			return
		}
		if isBackendFailure(err) {
			writeError(c, status, "failed, try again")
			return
		}
	case status == http.StatusConflict || status == http.StatusForbidden:
		logging.Ctx(c.Request.Context()).Info().Err(err).Str("route", c.FullPath()).Msg("request refused")
	}
	writeError(c, status, err.Error())
}

// isBackendFailure reports store errors whose detail stays in the log.
func isBackendFailure(err error) bool {
	for _, target := range []error{
		ride.ErrBackendRead, ride.ErrBackendWrite,
		booking.ErrBackendRead, booking.ErrBackendWrite,
		profile.ErrBackendRead, profile.ErrBackendWrite,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
