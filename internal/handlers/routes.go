package handlers

import "github.com/gin-gonic/gin"

// Routes bundles the handlers of the gateway surface.
type Routes struct {
	Session       *SessionHandler
	Chat          *ChatHandler
	Draft         *DraftHandler
	Emotes        *EmoteHandler
	Notifications *NotificationHandler
	WebSocket     gin.HandlerFunc
}

// Register mounts every session route on r. r is expected to carry the
// auth middleware.
func (rt Routes) Register(r gin.IRoutes) {
	r.GET("/state", rt.Session.GetState)
	r.DELETE("/session", rt.Session.CloseSession)
	r.POST("/error/clear", rt.Session.ClearError)
	r.GET("/stream", rt.Session.GetStream)

	r.GET("/channels", rt.Chat.ListChannels)
	r.POST("/channels/reload", rt.Chat.ReloadChannels)
	r.POST("/channels/:channel_id/select", rt.Chat.SelectChannel)
	r.GET("/messages", rt.Chat.ListMessages)
	r.POST("/messages/reload", rt.Chat.ReloadMessages)
	r.POST("/messages/:message_id/reactions", rt.Chat.AddReaction)
	r.DELETE("/messages/:message_id/reactions/:emoji", rt.Chat.RemoveReaction)
	r.POST("/messages/:message_id/translate", rt.Chat.Translate)
	r.POST("/scroll", rt.Chat.SetScroll)
	r.POST("/scroll/jump", rt.Chat.JumpToBottom)

	r.PUT("/draft", rt.Draft.SetDraft)
	r.POST("/draft/emotes", rt.Draft.InsertEmote)
	r.POST("/draft/paste", rt.Draft.Paste)
	r.POST("/draft/keys", rt.Draft.Key)
	r.POST("/draft/submit", rt.Draft.Submit)

	r.GET("/emotes", rt.Emotes.ListEmotes)
	r.POST("/emotes", rt.Emotes.AddEmote)
	r.POST("/emotes/refresh", rt.Emotes.RefreshEmotes)
	r.GET("/emotes/search", rt.Emotes.Search)
	r.PUT("/emotes/search", rt.Emotes.QueueSearch)
	r.GET("/emotes/recent", rt.Emotes.Recent)

	r.GET("/notifications", rt.Notifications.List)
	r.POST("/notifications/refresh", rt.Notifications.Refresh)
	r.POST("/notifications/read-all", rt.Notifications.MarkAllRead)
	r.POST("/notifications/:notification_id/read", rt.Notifications.MarkRead)
	r.PUT("/notifications/dropdown", rt.Notifications.SetDropdown)

	if rt.WebSocket != nil {
		r.GET("/ws", rt.WebSocket)
	}
}
