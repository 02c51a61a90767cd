package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chat-engine/internal/observability"
)

const wsRoutingKey = "ws_events.sessions"

func newConnID() string {
	return uuid.NewString()
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"session_id":  info.SessionID,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"platform":  info.Platform,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey,
		observability.NewEvent("ws_events", event, info.RequestID, info.TraceID, payload))
	observability.IncWSEvent(event)
}
