package models

import (
	"encoding/json"
	"time"

	"github.com/samber/mo"
)

// Channel is a chat room a user can select.
type Channel struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Category      string               `json:"category"`
	Description   string               `json:"description"`
	MemberCount   int                  `json:"member_count"`
	TierRequired  Tier                 `json:"tier_required"`
	LastMessageAt mo.Option[time.Time] `json:"last_message_at"`
}

// UnmarshalJSON reads a null or zero last_message_at as absent.
func (c *Channel) UnmarshalJSON(data []byte) error {
	type plain Channel
	aux := struct {
		*plain
		LastMessageAt *time.Time `json:"last_message_at"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.LastMessageAt = mo.None[time.Time]()
	if aux.LastMessageAt != nil && !aux.LastMessageAt.IsZero() {
		c.LastMessageAt = mo.Some(*aux.LastMessageAt)
	}
	return nil
}

// Accessible reports whether a user of the given tier may join the channel.
func (c Channel) Accessible(tier Tier) bool {
	return tier.AtLeast(c.TierRequired)
}
