package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks the live connections of every session.
type Hub struct {
	rooms map[string]map[*websocket.Conn]ConnInfo
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*websocket.Conn]ConnInfo)}
}

// Add registers a connection under its session.
func (h *Hub) Add(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[info.SessionID]; !ok {
		h.rooms[info.SessionID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.rooms[info.SessionID][conn] = info
}

// Remove drops a connection. It reports whether it was registered.
func (h *Hub) Remove(sessionID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[sessionID]
	if !ok {
		return false
	}
	if _, ok := conns[conn]; !ok {
		return false
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.rooms, sessionID)
	}
	return true
}

// Count returns the number of connections of a session.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// CloseSession sends a close frame to every connection of a session and
// returns how many were closed.
func (h *Hub) CloseSession(sessionID string) int {
	h.mu.Lock()
	conns := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.mu.Unlock()

	for conn, info := range conns {
		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline())
			conn.Close()
		}
		publishWSEvent(context.Background(), "ws_kick", info, "session closed")
	}
	return len(conns)
}
