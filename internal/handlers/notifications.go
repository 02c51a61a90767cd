package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NotificationHandler exposes the notification center.
type NotificationHandler struct{}

func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{}
}

func (h *NotificationHandler) List(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot().Notifications)
}

func (h *NotificationHandler) Refresh(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := s.RefreshNotifications(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot().Notifications)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := s.MarkNotificationRead(c.Request.Context(), c.Param("notification_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": s.Snapshot().Notifications.UnreadCount})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	s.MarkAllNotificationsRead(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"unread_count": s.Snapshot().Notifications.UnreadCount})
}

// SetDropdown opens or closes the notification list.
func (h *NotificationHandler) SetDropdown(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		Open *bool `json:"open" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SetDropdownOpen(*req.Open)
	c.Status(http.StatusNoContent)
}
