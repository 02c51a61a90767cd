package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-engine/internal/middleware"
	"chat-engine/internal/observability"
	"chat-engine/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func deadline() time.Time {
	return time.Now().Add(writeWait)
}

// Event is the frame written to session sockets.
type Event struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

// SessionWebSocketHandler streams session snapshots to clients.
type SessionWebSocketHandler struct {
	hub *Hub
}

// NewSessionWebSocketHandler constructs a SessionWebSocketHandler.
func NewSessionWebSocketHandler(hub *Hub) *SessionWebSocketHandler {
	return &SessionWebSocketHandler{hub: hub}
}

// Handle upgrades the connection. The session is resolved by the auth
// middleware; every change to it is pushed as a snapshot event.
func (h *SessionWebSocketHandler) Handle(c *gin.Context) {
	s := middleware.SessionFromContext(c)
	if s == nil || s.Closed() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown session"})
		return
	}

	ctx, span := otel.Tracer("chat-engine/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		SessionID:   s.ID(),
		UserID:      s.User().ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		Platform:    observability.PlatformFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.Add(conn, info)
	observability.IncWSActive()
	publishWSEvent(ctx, "ws_connect", info, "")

	snapshots, cancel := s.Subscribe()
	done := make(chan struct{})

	go h.write(conn, info, snapshots, done)
	go func() {
		defer close(done)
		var closeReason string
		defer func() {
			cancel()
			h.hub.Remove(info.SessionID, conn)
			observability.DecWSActive()
			publishWSEvent(ctx, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			s.Touch()
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, "ws_error", info, closeReason)
				}
				return
			}
			s.Touch()
		}
	}()
}

// write is the only goroutine writing data frames to conn.
func (h *SessionWebSocketHandler) write(conn *websocket.Conn, info ConnInfo, snapshots <-chan session.Snapshot, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case snap, ok := <-snapshots:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline())
				return
			}
			payload, err := json.Marshal(Event{Type: "snapshot", Snapshot: &snap})
			if err != nil {
				log.Printf("ws marshal error session_id=%s err=%v", info.SessionID, err)
				continue
			}
			conn.SetWriteDeadline(deadline())
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error conn_id=%s err=%v", info.ConnID, err)
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline()); err != nil {
				conn.Close()
				return
			}
		}
	}
}
