// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridepool/internal/http/handlers"
	"ridepool/internal/http/middleware"
)

// Routes builds the engine. Everything under /api requires a Firebase ID token.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))

	places := handlers.NewPlacesHandler(s.deps.Places, s.deps.Routes)
	api.GET("/places", places.Suggest)
	api.GET("/routes", places.Route)

	rides := handlers.NewRideHandler(s.deps.Matcher, s.deps.Rides, s.deps.Location)
	api.POST("/rides/search", rides.Search)
	api.POST("/rides", rides.Create)
	api.GET("/rides/mine", rides.Mine)
	api.GET("/rides/:id", rides.Get)
	api.PUT("/rides/:id", rides.Update)
	api.POST("/rides/:id/cancel", rides.Cancel)
	api.GET("/rides/:id/history", rides.History)
	api.POST("/rides/:id/bookings", rides.Book)

	bookings := handlers.NewBookingHandler(s.deps.Matcher, s.deps.Bookings)
	api.GET("/bookings/mine", bookings.Mine)
	api.POST("/bookings/:id/cancel", bookings.Cancel)

	profiles := handlers.NewProfileHandler(s.deps.Profiles)
	api.GET("/profile", profiles.Get)
	api.PUT("/profile", profiles.Save)
	api.POST("/profile/devices", profiles.RegisterDevice)

	messages := handlers.NewMessageHandler(s.deps.Matcher)
	api.POST("/messages", messages.Send)

	notifications := handlers.NewNotificationHandler(s.deps.Notifications, s.deps.Heartbeat)
	api.GET("/notifications/stream", notifications.Stream)

	assistant := handlers.NewAssistantHandler(s.deps.Assistant)
	api.POST("/assistant/search", assistant.Search)
	api.GET("/assistant/allowance", assistant.Allowance)

	return r
}
