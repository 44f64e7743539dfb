package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridepool/internal/types"
)

// pathID reads and checks the :id parameter, answering 400 when it is unusable.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return types.ID(id), true
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
