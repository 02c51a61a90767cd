package models

import "time"

// Message represents a chat message in a channel window.
type Message struct {
	ID              string         `json:"id"`
	ChannelID       string         `json:"channel_id"`
	UserID          string         `json:"user_id"`
	UserDisplayName string         `json:"user_display_name"`
	UserTier        Tier           `json:"user_tier"`
	Content         string         `json:"content"`
	CreatedAt       time.Time      `json:"created_at"`
	ReactionSummary map[string]int `json:"reaction_summary"`
	SystemFlag      bool           `json:"system_flag"`

	// Local delivery state of optimistic messages; never sent upstream.
	Pending bool `json:"pending,omitempty"`
	Failed  bool `json:"failed,omitempty"`
}

// Clone returns a copy that does not share the reaction map.
func (m Message) Clone() Message {
	out := m
	if m.ReactionSummary != nil {
		out.ReactionSummary = make(map[string]int, len(m.ReactionSummary))
		for emoji, count := range m.ReactionSummary {
			out.ReactionSummary[emoji] = count
		}
	}
	return out
}

// ReactionAction is the direction of a reaction mutation.
type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

// ChatEvent is pushed over the live channel feed.
type ChatEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}
