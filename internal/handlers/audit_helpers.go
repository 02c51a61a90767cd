package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-engine/internal/middleware"
	"chat-engine/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if s := middleware.SessionFromContext(c); s != nil {
		if id := s.User().ID; id != "" {
			return &id
		}
	}
	if header := c.GetHeader("X-User-ID"); header != "" {
		return &header
	}
	return nil
}

// audit records an action of the request's session.
func audit(c *gin.Context, emitter *telemetry.AuditEmitter, eventType, text string, fields map[string]string) {
	if emitter == nil {
		return
	}
	record := telemetry.Record{
		EventType: eventType,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
		Fields:    fields,
	}
	if s := middleware.SessionFromContext(c); s != nil {
		record.SessionID = s.ID()
	}
	emitter.Record(c.Request.Context(), record)
}
