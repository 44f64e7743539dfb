// README: Profile handlers: read, save and device token registration.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/profile"
	"ridepool/internal/types"
)

type ProfileService interface {
	Get(ctx context.Context, uid types.ID) (*profile.Profile, error)
	Save(ctx context.Context, cmd profile.SaveCommand) (*profile.Profile, error)
	RegisterDevice(ctx context.Context, uid types.ID, token string) error
}

type ProfileHandler struct {
	profiles ProfileService
}

func NewProfileHandler(svc ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: svc}
}

// Get handles GET /api/profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type saveProfileReq struct {
	FullName                 string `json:"fullName" validate:"required,max=120"`
	Phone                    string `json:"phone" validate:"required,max=20"`
	Gender                   string `json:"gender" validate:"omitempty,oneof=male female other"`
	Age                      string `json:"age" validate:"omitempty,numeric"`
	Address                  string `json:"address" validate:"max=500"`
	EmergencyContact         string `json:"emergencyContact" validate:"max=120"`
	PreferredPickupLocations string `json:"preferredPickupLocations" validate:"max=500"`
	PreferredDropLocations   string `json:"preferredDropLocations" validate:"max=500"`
}

// Save handles PUT /api/profile.
func (h *ProfileHandler) Save(c *gin.Context) {
	var req saveProfileReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.profiles.Save(c.Request.Context(), profile.SaveCommand{
		User:                     middleware.CallerIdentity(c),
		FullName:                 req.FullName,
		Phone:                    req.Phone,
		Gender:                   req.Gender,
		Age:                      req.Age,
		Address:                  req.Address,
		EmergencyContact:         req.EmergencyContact,
		PreferredPickupLocations: req.PreferredPickupLocations,
		PreferredDropLocations:   req.PreferredDropLocations,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type deviceReq struct {
	Token string `json:"token" validate:"required,max=4096"`
}

// RegisterDevice handles POST /api/profile/devices.
func (h *ProfileHandler) RegisterDevice(c *gin.Context) {
	var req deviceReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.profiles.RegisterDevice(c.Request.Context(), types.ID(middleware.CallerUID(c)), req.Token); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
