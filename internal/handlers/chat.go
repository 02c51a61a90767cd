package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/telemetry"
)

// ChatHandler exposes channels, the message window and scrolling.
type ChatHandler struct {
	emitter *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(emitter *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{emitter: emitter}
}

// ListChannels returns the loaded channels and the active one.
func (h *ChatHandler) ListChannels(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	snap := s.Snapshot()
	c.JSON(http.StatusOK, gin.H{"channels": snap.Channels, "active_channel": snap.ActiveChannel})
}

// ReloadChannels refetches the channel list.
func (h *ChatHandler) ReloadChannels(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := s.LoadChannels(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": s.Snapshot().Channels})
}

// SelectChannel activates a channel and loads its messages.
func (h *ChatHandler) SelectChannel(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	channelID := c.Param("channel_id")
	if err := s.SelectChannel(c.Request.Context(), channelID); err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.emitter, telemetry.EventChannelChanged, "channel selected", map[string]string{"channel_id": channelID})
	c.JSON(http.StatusOK, gin.H{"active_channel": s.Snapshot().ActiveChannel, "messages": s.MessageViews()})
}

// ListMessages returns the grouped, parsed message window.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	snap := s.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"messages":          snap.Messages,
		"new_message_count": snap.NewMessageCount,
		"at_bottom":         snap.AtBottom,
		"scroll_seq":        snap.ScrollSeq,
	})
}

// ReloadMessages refetches the active channel's window, typically after an
// error.
func (h *ChatHandler) ReloadMessages(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := s.ReloadMessages(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": s.MessageViews()})
}

// AddReaction increments an emoji on a message.
func (h *ChatHandler) AddReaction(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	messageID := c.Param("message_id")
	msg, err := s.React(c.Request.Context(), messageID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.emitter, telemetry.EventReaction, "reaction added", map[string]string{"message_id": messageID, "emoji": req.Emoji})
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// RemoveReaction decrements an emoji on a message.
func (h *ChatHandler) RemoveReaction(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	messageID, emoji := c.Param("message_id"), c.Param("emoji")
	msg, err := s.Unreact(c.Request.Context(), messageID, emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.emitter, telemetry.EventReaction, "reaction removed", map[string]string{"message_id": messageID, "emoji": emoji})
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Translate returns a translation of a message, or null when none exists.
func (h *ChatHandler) Translate(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	out, err := s.Translate(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"translation": out})
}

// SetScroll records whether the client view is at the bottom.
func (h *ChatHandler) SetScroll(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		AtBottom *bool `json:"at_bottom" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SetAtBottom(*req.AtBottom)
	c.Status(http.StatusNoContent)
}

// JumpToBottom clears the new-message backlog.
func (h *ChatHandler) JumpToBottom(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	s.JumpToBottom()
	snap := s.Snapshot()
	c.JSON(http.StatusOK, gin.H{"scroll_seq": snap.ScrollSeq, "new_message_count": snap.NewMessageCount})
}
