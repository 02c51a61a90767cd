package models

// CachedEmote is a catalog entry keyed by its unique name.
type CachedEmote struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Animated  bool   `json:"animated"`
	ZeroWidth bool   `json:"zero_width"`
}

// SegmentType distinguishes parsed message segments.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentEmote SegmentType = "emote"
)

// Segment is a renderable unit of message content.
type Segment struct {
	Type      SegmentType  `json:"type"`
	Value     string       `json:"value"`
	Emote     *CachedEmote `json:"emote,omitempty"`
	ZeroWidth bool         `json:"zero_width,omitempty"`
}

// CatalogStatus describes the emote catalog fetch lifecycle.
type CatalogStatus string

const (
	CatalogIdle    CatalogStatus = "idle"
	CatalogLoading CatalogStatus = "loading"
	CatalogReady   CatalogStatus = "ready"
	CatalogError   CatalogStatus = "error"
)
