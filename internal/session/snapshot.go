package session

import (
	"time"

	"github.com/samber/mo"

	"chat-engine/internal/composer"
	"chat-engine/internal/emotes"
	"chat-engine/internal/models"
	"chat-engine/internal/notifications"
	"chat-engine/internal/store"
	"chat-engine/internal/stream"
)

// MessageView is a grouped row with its content parsed for rendering.
type MessageView struct {
	Message       models.Message   `json:"message"`
	Grouped       bool             `json:"grouped"`
	DateSeparator *time.Time       `json:"date_separator,omitempty"`
	Marker        emotes.Marker    `json:"marker"`
	Segments      []models.Segment `json:"segments"`
	Translation   *string          `json:"translation,omitempty"`
}

// DraftView is the composer as a UI adapter renders it.
type DraftView struct {
	Text      string           `json:"text"`
	Pieces    []composer.Piece `json:"pieces"`
	Length    int              `json:"length"`
	Remaining int              `json:"remaining"`
	MaxLength int              `json:"max_length"`
	CanSubmit bool             `json:"can_submit"`
}

// CatalogView summarizes the emote catalog without listing it.
type CatalogView struct {
	Status models.CatalogStatus `json:"status"`
	Count  int                  `json:"count"`
	Error  string               `json:"error,omitempty"`
}

// Snapshot is the complete observable state of a session.
type Snapshot struct {
	SessionID       string                    `json:"session_id"`
	Version         uint64                    `json:"version"`
	User            models.User               `json:"user"`
	Channels        []models.Channel          `json:"channels"`
	ActiveChannel   mo.Option[models.Channel] `json:"active_channel"`
	Messages        []MessageView             `json:"messages"`
	NewMessageCount int                       `json:"new_message_count"`
	AtBottom        bool                      `json:"at_bottom"`
	ScrollSeq       uint64                    `json:"scroll_seq"`
	LoadingChannels bool                      `json:"loading_channels"`
	LoadingMessages bool                      `json:"loading_messages"`
	Error           string                    `json:"error,omitempty"`
	Draft           DraftView                 `json:"draft"`
	RateLimit       models.RateLimitState     `json:"rate_limit"`
	Emotes          CatalogView               `json:"emotes"`
	Search          emotes.SearchState        `json:"search"`
	RecentEmotes    []models.CachedEmote      `json:"recent_emotes"`
	Notifications   notifications.State       `json:"notifications"`
	Stream          stream.State              `json:"stream"`
}

// Snapshot builds the current state. Each component is read under its own
// lock; no two are held at once.
func (s *Session) Snapshot() Snapshot {
	st := s.store.State()
	rl := s.limiter.State()

	status, catErr := s.catalog.Status()
	index := s.catalog.Snapshot()
	catalog := CatalogView{Status: status, Count: index.Len()}
	if catErr != nil {
		catalog.Error = catErr.Error()
	}

	text := s.composer.Text()
	draft := DraftView{
		Text:      text,
		Pieces:    s.composer.Pieces(),
		Length:    s.composer.Len(),
		Remaining: s.composer.Remaining(),
		MaxLength: s.composer.MaxLength(),
	}
	_, active := st.Active.Get()
	draft.CanSubmit = active && !s.composer.Empty() && !rl.IsLimited

	return Snapshot{
		SessionID:       s.id,
		Version:         s.version.Load(),
		User:            s.user,
		Channels:        st.Channels,
		ActiveChannel:   st.Active,
		Messages:        s.views(s.store.Rows(), index),
		NewMessageCount: st.NewMessages,
		AtBottom:        st.AtBottom,
		ScrollSeq:       st.ScrollSeq,
		LoadingChannels: st.LoadingChannels,
		LoadingMessages: st.LoadingMessages,
		Error:           st.Error,
		Draft:           draft,
		RateLimit:       rl,
		Emotes:          catalog,
		Search:          s.searcher.State(),
		RecentEmotes:    s.recents.List(),
		Notifications:   s.center.State(),
		Stream:          s.stream.State(),
	}
}

// MessageViews returns the grouped and parsed message window.
func (s *Session) MessageViews() []MessageView {
	return s.views(s.store.Rows(), s.catalog.Snapshot())
}

func (s *Session) views(rows []store.Row, index *emotes.Index) []MessageView {
	s.mu.Lock()
	translations := make(map[string]string, len(s.translations))
	for id, text := range s.translations {
		translations[id] = text
	}
	s.mu.Unlock()

	out := make([]MessageView, 0, len(rows))
	for _, row := range rows {
		marker, body := emotes.ParseMarker(row.Message.Content)
		if row.Message.SystemFlag && marker.Kind == emotes.MarkerNone {
			marker.Kind = emotes.MarkerSystem
		}
		v := MessageView{
			Message:       row.Message,
			Grouped:       row.Grouped,
			DateSeparator: row.DateSeparator,
			Marker:        marker,
			Segments:      emotes.Parse(body, index),
		}
		if text, ok := translations[row.Message.ID]; ok {
			v.Translation = &text
		}
		out = append(out, v)
	}
	return out
}
