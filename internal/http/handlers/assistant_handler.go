// README: Ride assistant handler (allowance-guarded Gemini search).
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/service"
	"ridepool/internal/types"
)

const assistantTimeout = 15 * time.Second

type Assistant interface {
	Search(ctx context.Context, uid types.ID, message string) (*service.AssistantResult, error)
	Allowance(ctx context.Context, uid types.ID) (int, error)
}

type AssistantHandler struct {
	assistant Assistant
}

func NewAssistantHandler(a Assistant) *AssistantHandler {
	return &AssistantHandler{assistant: a}
}

type assistantReq struct {
	Message string `json:"message" validate:"required"`
}

// Search handles POST /api/assistant/search.
func (h *AssistantHandler) Search(c *gin.Context) {
	var req assistantReq
	if !bindJSON(c, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), assistantTimeout)
	defer cancel()

	out, err := h.assistant.Search(ctx, types.ID(middleware.CallerUID(c)), req.Message)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

// Allowance handles GET /api/assistant/allowance.
func (h *AssistantHandler) Allowance(c *gin.Context) {
	left, err := h.assistant.Allowance(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"remaining": left})
}
