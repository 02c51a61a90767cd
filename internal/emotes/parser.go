package emotes

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"chat-engine/internal/models"
)

// Lookup resolves emote names against a catalog snapshot.
type Lookup interface {
	Lookup(name string) (models.CachedEmote, bool)
	Len() int
}

// Parse splits content into text and emote segments. Whitespace runs are
// kept as their own text segments so the segments concatenate back to
// content exactly. A zero-width emote is marked as such only when the
// previous non-whitespace segment was an emote.
func Parse(content string, lookup Lookup) []models.Segment {
	if content == "" {
		return nil
	}
	if lookup == nil || lookup.Len() == 0 {
		return []models.Segment{{Type: models.SegmentText, Value: content}}
	}

	segments := make([]models.Segment, 0, 8)
	prevEmote := false
	for _, tok := range tokenize(content) {
		if tok.space {
			segments = append(segments, models.Segment{Type: models.SegmentText, Value: tok.value})
			continue
		}
		emote, ok := lookup.Lookup(tok.value)
		if !ok {
			segments = append(segments, models.Segment{Type: models.SegmentText, Value: tok.value})
			prevEmote = false
			continue
		}
		e := emote
		segments = append(segments, models.Segment{
			Type:      models.SegmentEmote,
			Value:     tok.value,
			Emote:     &e,
			ZeroWidth: emote.ZeroWidth && prevEmote,
		})
		prevEmote = true
	}
	return segments
}

// Join concatenates segment values back into plain text.
func Join(segments []models.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Value)
	}
	return b.String()
}

type token struct {
	value string
	space bool
}

func tokenize(s string) []token {
	var out []token
	start := 0
	inSpace := false
	for i, w := 0, 0; i < len(s); i += w {
		r, width := utf8.DecodeRuneInString(s[i:])
		w = width
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			out = append(out, token{value: s[start:i], space: inSpace})
			start = i
			inSpace = space
		}
	}
	out = append(out, token{value: s[start:], space: inSpace})
	return out
}

// Marker is a structured prefix recognised in message content.
type Marker struct {
	Kind     string `json:"kind"`
	Argument string `json:"argument,omitempty"`
}

const (
	MarkerNone   = ""
	MarkerSystem = "system"
	MarkerReply  = "reply"
)

// ParseMarker splits a leading [SYSTEM] or [REPLY ...] marker from content.
// Content without a marker is returned unchanged.
func ParseMarker(content string) (Marker, string) {
	switch {
	case strings.HasPrefix(content, "[SYSTEM]"):
		return Marker{Kind: MarkerSystem}, strings.TrimPrefix(strings.TrimPrefix(content, "[SYSTEM]"), " ")
	case strings.HasPrefix(content, "[REPLY "):
		end := strings.IndexByte(content, ']')
		if end < 0 {
			return Marker{Kind: MarkerNone}, content
		}
		arg := strings.TrimSpace(content[len("[REPLY "):end])
		return Marker{Kind: MarkerReply, Argument: arg}, strings.TrimPrefix(content[end+1:], " ")
	}
	return Marker{Kind: MarkerNone}, content
}
