package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/booking"
)

const actorContextKey = "rentguru.actor"

// AuthMiddleware resolves a bearer token into the acting user. Requests
// without a valid token continue anonymously; handlers decide whether that is enough.
type AuthMiddleware struct {
	Verifier policies.TokenVerifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Verifier == nil {
		c.Next()
		return
	}
	actor, err := m.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(actorContextKey, actor)
	c.Next()
}

func currentActor(c *gin.Context) (booking.Actor, bool) {
	val, exists := c.Get(actorContextKey)
	if !exists {
		return booking.Actor{}, false
	}
	a, ok := val.(booking.Actor)
	return a, ok && a.UserID != ""
}

func requireActor(c *gin.Context) (booking.Actor, bool) {
	a, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return booking.Actor{}, false
	}
	return a, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
