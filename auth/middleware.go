package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/umlhub/umlhub/internal/slogging"
)

// Context keys set by the middleware for downstream handlers
const (
	// UserContextKey is the key for the resolved user in the gin context
	UserContextKey = "user"
	// UserIDContextKey is the key for the authenticated user ID
	UserIDContextKey = "userID"
)

// Middleware provides authentication middleware for Gin
type Middleware struct {
	service *Service
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// AuthRequired is a middleware that requires a valid bearer credential.
// Websocket handshakes may carry the token as a `token` query parameter
// because browser websocket clients cannot set request headers.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := slogging.Get().WithContext(c)

		tokenString := ExtractToken(c)
		if tokenString == "" {
			logger.Warn("Authentication failed: missing bearer credential client_ip=%v", c.ClientIP())
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization is required",
			})
			return
		}

		user, err := m.service.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			logger.Warn("Authentication failed client_ip=%v error=%v", c.ClientIP(), err)
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired credential",
			})
			return
		}

		c.Set(UserContextKey, user)
		c.Set(UserIDContextKey, user.ID)
		logger.Debug("Authenticated user_id=%v", user.ID)

		c.Next()
	}
}

// ExtractToken pulls the bearer credential from the Authorization header,
// falling back to the `token` query parameter
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

// UserFromContext returns the authenticated user set by AuthRequired
func UserFromContext(c *gin.Context) (*User, bool) {
	v, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*User)
	return user, ok
}
