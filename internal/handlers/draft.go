package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/composer"
	"chat-engine/internal/errs"
	"chat-engine/internal/telemetry"
)

// DraftHandler exposes the composer and message submission.
type DraftHandler struct {
	emitter *telemetry.AuditEmitter
}

// NewDraftHandler builds a DraftHandler.
func NewDraftHandler(emitter *telemetry.AuditEmitter) *DraftHandler {
	return &DraftHandler{emitter: emitter}
}

// SetDraft replaces the draft text.
func (h *DraftHandler) SetDraft(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SetDraft(req.Text)
	c.JSON(http.StatusOK, gin.H{"draft": s.Snapshot().Draft})
}

// InsertEmote appends an emote token to the draft.
func (h *DraftHandler) InsertEmote(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.InsertEmote(c.Request.Context(), req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": s.Snapshot().Draft})
}

// Paste inserts sanitized text into the draft.
func (h *DraftHandler) Paste(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inserted := s.Paste(req.Text)
	c.JSON(http.StatusOK, gin.H{"inserted": inserted, "draft": s.Snapshot().Draft})
}

// Key forwards a key press; Enter submits.
func (h *DraftHandler) Key(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var ev composer.KeyEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, sent, err := s.HandleKey(c.Request.Context(), ev)
	if err != nil {
		h.auditSendFailure(c, err)
		respondError(c, err)
		return
	}
	if msg, ok := sent.Get(); ok {
		audit(c, h.emitter, telemetry.EventMessageSent, "message sent", map[string]string{"message_id": msg.ID, "channel_id": msg.ChannelID})
	}
	c.JSON(http.StatusOK, gin.H{"action": action, "message": sent, "draft": s.Snapshot().Draft})
}

// Submit sends the draft.
func (h *DraftHandler) Submit(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	msg, err := s.Submit(c.Request.Context())
	if err != nil {
		h.auditSendFailure(c, err)
		respondError(c, err)
		return
	}
	audit(c, h.emitter, telemetry.EventMessageSent, "message sent", map[string]string{"message_id": msg.ID, "channel_id": msg.ChannelID})
	c.JSON(http.StatusCreated, gin.H{"message": msg, "rate_limit": s.Snapshot().RateLimit})
}

func (h *DraftHandler) auditSendFailure(c *gin.Context, err error) {
	if errors.Is(err, errs.ErrValidation) {
		audit(c, h.emitter, telemetry.EventSendRejected, "send rejected", map[string]string{"reason": errs.Reason(err)})
	}
}
