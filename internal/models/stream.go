package models

import "time"

// StreamStatus is the live state of the stream bound to a channel.
type StreamStatus struct {
	ChannelID   string    `json:"channel_id"`
	Live        bool      `json:"live"`
	ViewerCount int       `json:"viewer_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RateLimitState is the client-side cooldown state.
type RateLimitState struct {
	IsLimited        bool `json:"is_limited"`
	RemainingSeconds int  `json:"remaining_seconds"`
}
