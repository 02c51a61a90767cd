package models

import "strings"

// Tier is an account classification that gates rate limits and channels.
type Tier string

const (
	TierStandard   Tier = "standard"
	TierVIP        Tier = "vip"
	TierHighRoller Tier = "high_roller"
	TierWhale      Tier = "whale"
)

var tierRank = map[Tier]int{
	TierStandard:   0,
	TierVIP:        1,
	TierHighRoller: 2,
	TierWhale:      3,
}

// ParseTier normalizes a tier name. Unknown names map to TierStandard.
func ParseTier(s string) Tier {
	if t, ok := LookupTier(s); ok {
		return t
	}
	return TierStandard
}

// LookupTier normalizes a tier name and reports whether it is known.
func LookupTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")))
	_, ok := tierRank[t]
	return t, ok
}

// Rank orders tiers from lowest to highest.
func (t Tier) Rank() int {
	return tierRank[t]
}

// AtLeast reports whether t ranks at or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// User is the read-only session identity.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Tier        Tier   `json:"tier"`
}
