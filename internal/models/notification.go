package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType describes what triggered a notification.
type NotificationType string

const (
	NotificationReply     NotificationType = "reply"
	NotificationMention   NotificationType = "mention"
	NotificationBroadcast NotificationType = "broadcast"
	NotificationSystem    NotificationType = "system"
)

// NotificationItem is a single entry in the notification center.
type NotificationItem struct {
	ID              string           `json:"id"`
	Type            NotificationType `json:"type"`
	Title           string           `json:"title"`
	Body            *string          `json:"body,omitempty"`
	IsRead          bool             `json:"is_read"`
	ChannelID       *string          `json:"channel_id,omitempty"`
	MessageID       *string          `json:"message_id,omitempty"`
	SenderUsername  *string          `json:"sender_username,omitempty"`
	SenderAvatarURL *string          `json:"sender_avatar_url,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NotificationDelivery is a live notification addressed to one user.
type NotificationDelivery struct {
	UserID       string           `json:"user_id"`
	Notification NotificationItem `json:"notification"`
}

// ParseNotificationDelivery decodes a live notification from a message
// broker payload.
func ParseNotificationDelivery(raw []byte) (NotificationDelivery, error) {
	var d NotificationDelivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return NotificationDelivery{}, fmt.Errorf("decode notification delivery: %w", err)
	}
	if d.UserID == "" || d.Notification.ID == "" {
		return NotificationDelivery{}, fmt.Errorf("notification delivery missing user_id or notification id")
	}
	if d.Notification.Type == "" {
		d.Notification.Type = NotificationSystem
	}
	if d.Notification.CreatedAt.IsZero() {
		d.Notification.CreatedAt = time.Now().UTC()
	}
	return d, nil
}
