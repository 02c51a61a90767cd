package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/errs"
	"chat-engine/internal/middleware"
	"chat-engine/internal/observability"
	"chat-engine/internal/session"
)

// respondError maps engine errors to status codes. Validation failures are
// blocked affordances and carry a reason code for the UI.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "reason": errs.Reason(err)})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "reason": errs.Reason(err)})
	case errors.Is(err, session.ErrUnknownSession):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown session"})
	case errs.IsTransport(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "reason": errs.Reason(err)})
	default:
		log.Printf("request failed path=%s trace_id=%s err=%v", c.FullPath(), observability.TraceIDFromContext(c.Request.Context()), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// currentSession aborts with 401 when no session is on the context.
func currentSession(c *gin.Context) (*session.Session, bool) {
	s := middleware.SessionFromContext(c)
	if s == nil || s.Closed() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown session"})
		return nil, false
	}
	return s, true
}
