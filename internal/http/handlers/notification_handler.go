// README: Server-sent event stream of the caller's in-app notifications.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/logging"
	"ridepool/internal/modules/notify"
	"ridepool/internal/types"
)

const (
	defaultHeartbeat = 25 * time.Second
	streamBuffer     = 16
)

type Subscriber interface {
	Subscribe(ctx context.Context, uid types.ID, handler func(notify.Notification)) (func(), error)
}

type NotificationHandler struct {
	hub       Subscriber
	heartbeat time.Duration
}

func NewNotificationHandler(hub Subscriber, heartbeat time.Duration) *NotificationHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &NotificationHandler{hub: hub, heartbeat: heartbeat}
}

// Stream handles GET /api/notifications/stream.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		writeError(c, http.StatusServiceUnavailable, "notifications unavailable")
		return
	}
	ctx := c.Request.Context()
	uid := types.ID(middleware.CallerUID(c))

	events := make(chan notify.Notification, streamBuffer)
	unsubscribe, err := h.hub.Subscribe(ctx, uid, func(n notify.Notification) {
		select {
		case events <- n:
		default:
			logging.Ctx(ctx).Warn().Str("kind", string(n.Kind)).Msg("notification stream full, dropping")
		}
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("notification subscribe failed")
		writeError(c, http.StatusServiceUnavailable, "notifications unavailable")
		return
	}
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n := <-events:
			c.SSEvent("notification", n)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
