package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sazardev/hrauth/internal/models"
)

// Context keys set by Auth.
const (
	CtxUser    = "current_user"
	CtxSession = "current_session"
	CtxBearer  = "bearer_token"
)

// Authenticator resolves a bearer token to its user and live session.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (models.User, models.Session, error)
}

func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		bearer := strings.TrimPrefix(authHeader, "Bearer ")

		user, session, err := auth.Authenticate(c.Request.Context(), bearer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(CtxBearer, bearer)
		c.Set(CtxUser, user)
		c.Set(CtxSession, session)

		c.Next()
	}
}

// CurrentUser returns the authenticated user set by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(CtxUser)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

// CurrentSession returns the authenticated session set by Auth.
func CurrentSession(c *gin.Context) (models.Session, bool) {
	val, exists := c.Get(CtxSession)
	if !exists {
		return models.Session{}, false
	}
	session, ok := val.(models.Session)
	return session, ok
}
