// README: Firebase ID token auth; stores the caller's uid and email on the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridepool/internal/infra"
	"ridepool/internal/logging"
	"ridepool/internal/types"
)

const (
	ctxKeyUID   = "caller_uid"
	ctxKeyEmail = "caller_email"
)

// Auth rejects requests without a valid "Bearer <id token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			logging.Ctx(c.Request.Context()).Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxKeyUID, token.UID)
		c.Set(ctxKeyEmail, token.Email)
		c.Request = c.Request.WithContext(logging.WithUserID(c.Request.Context(), token.UID))
		c.Next()
	}
}

// CallerUID returns the authenticated uid, or "" outside Auth.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

func CallerEmail(c *gin.Context) string {
	return c.GetString(ctxKeyEmail)
}

func CallerIdentity(c *gin.Context) types.Identity {
	return types.Identity{ID: types.ID(CallerUID(c)), Email: CallerEmail(c)}
}
