package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parktronic/internal/service"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	SessionCookie           = "session"
	UserIDKey               = "userID"
)

type AuthMiddleware struct {
	authService *service.AuthService
}

func NewAuthMiddleware(authService *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// TokenFromRequest returns the bearer token, falling back to the session
// cookie. Empty when neither is present.
func TokenFromRequest(c *gin.Context) string {
	if fields := strings.Fields(c.GetHeader(AuthorizationHeaderKey)); len(fields) == 2 && strings.EqualFold(fields[0], AuthorizationTypeBearer) {
		return fields[1]
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// Authenticate requires a valid token with a live session and stores the
// user id under UserIDKey.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}
		userID, err := m.authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is invalid or expired"})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}
