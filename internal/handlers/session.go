package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/middleware"
)

// SessionCloser tears down the session of a token.
type SessionCloser interface {
	Remove(token string) bool
}

// SessionHandler exposes whole-session state and lifecycle.
type SessionHandler struct {
	sessions SessionCloser
}

func NewSessionHandler(sessions SessionCloser) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// GetState returns the full session snapshot.
func (h *SessionHandler) GetState(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// CloseSession logs the session out. Live sockets are closed by the
// registry's lifecycle hook.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	if _, ok := currentSession(c); !ok {
		return
	}
	h.sessions.Remove(middleware.TokenFromContext(c))
	c.Status(http.StatusNoContent)
}

// ClearError dismisses the recoverable error banner.
func (h *SessionHandler) ClearError(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	s.ClearError()
	c.Status(http.StatusNoContent)
}

// GetStream returns the live state of the active channel's stream.
func (h *SessionHandler) GetStream(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if c.Query("refresh") == "true" {
		if err := s.RefreshStream(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.Stream())
}
