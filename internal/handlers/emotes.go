package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/models"
)

// EmoteHandler exposes the emote catalog, search and recents.
type EmoteHandler struct{}

func NewEmoteHandler() *EmoteHandler {
	return &EmoteHandler{}
}

// ListEmotes returns the catalog sorted by name.
func (h *EmoteHandler) ListEmotes(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"emotes": s.Emotes(c.Request.Context()), "status": s.Snapshot().Emotes})
}

// RefreshEmotes refetches the global set regardless of its age.
func (h *EmoteHandler) RefreshEmotes(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := s.RefreshEmotes(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.Snapshot().Emotes})
}

// AddEmote merges a single emote into the catalog.
func (h *EmoteHandler) AddEmote(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req models.CachedEmote
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emote name required"})
		return
	}
	added := s.AddEmote(req)
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"added": added})
}

// Search runs an immediate remote search.
func (h *EmoteHandler) Search(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	results := s.SearchEmotesNow(c.Request.Context(), c.Query("query"), page)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// QueueSearch records a keystroke; results arrive in snapshots after the
// debounce delay.
func (h *EmoteHandler) QueueSearch(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
		Page  int    `json:"page"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SearchEmotes(req.Query, req.Page)
	c.JSON(http.StatusAccepted, gin.H{"search": s.Snapshot().Search})
}

// Recent returns the recently used emotes.
func (h *EmoteHandler) Recent(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"emotes": s.RecentEmotes()})
}
