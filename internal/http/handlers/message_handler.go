// README: Direct message handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/matching"
	"ridepool/internal/types"
)

type MessageHandler struct {
	matcher Matcher
}

func NewMessageHandler(matcher Matcher) *MessageHandler {
	return &MessageHandler{matcher: matcher}
}

type messageReq struct {
	To   string `json:"to" validate:"required,max=128"`
	Text string `json:"text" validate:"required"`
}

// Send handles POST /api/messages.
func (h *MessageHandler) Send(c *gin.Context) {
	var req messageReq
	if !bindJSON(c, &req) {
		return
	}
	err := h.matcher.SendMessage(c.Request.Context(), matching.MessageCommand{
		From: middleware.CallerIdentity(c),
		To:   types.ID(req.To),
		Text: req.Text,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, map[string]any{"delivered": true})
}
