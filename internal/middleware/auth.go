package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/errs"
	"chat-engine/internal/session"
)

const (
	sessionKey = "session"
	tokenKey   = "token"
	userIDKey  = "userID"
)

// Sessions resolves a bearer token to its session.
type Sessions interface {
	Acquire(ctx context.Context, token string) (*session.Session, error)
}

// AuthMiddleware resolves the bearer token to a session, creating it on
// first use. WebSocket clients may pass the token as ?token=.
func AuthMiddleware(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		s, err := sessions.Acquire(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if errs.IsTransport(err) && !unauthorized(err) {
				status = http.StatusBadGateway
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "invalid token"})
			return
		}

		SetSession(c, s, token)
		c.Next()
	}
}

// SetSession stores the resolved session on the request context.
func SetSession(c *gin.Context, s *session.Session, token string) {
	c.Set(sessionKey, s)
	c.Set(tokenKey, token)
	c.Set(userIDKey, s.User().ID)
}

// SessionFromContext returns the session set by AuthMiddleware.
func SessionFromContext(c *gin.Context) *session.Session {
	if val, ok := c.Get(sessionKey); ok {
		if s, ok := val.(*session.Session); ok {
			return s
		}
	}
	return nil
}

// TokenFromContext returns the bearer token set by AuthMiddleware.
func TokenFromContext(c *gin.Context) string {
	return c.GetString(tokenKey)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// unauthorized reports whether the backend rejected the token itself.
func unauthorized(err error) bool {
	var status interface{ HTTPStatus() int }
	if errors.As(err, &status) {
		code := status.HTTPStatus()
		return code == http.StatusUnauthorized || code == http.StatusForbidden
	}
	return false
}
