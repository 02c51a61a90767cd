// Package composer holds the draft buffer of mixed text and emote tokens.
package composer

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"chat-engine/internal/errs"
)

const DefaultMaxLength = 500

// Piece is a run of literal text or a single emote token.
type Piece struct {
	Value string `json:"value"`
	Emote bool   `json:"emote"`
}

// KeyEvent is a key press forwarded by a UI adapter.
type KeyEvent struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
}

func (k KeyEvent) modified() bool {
	return k.Shift || k.Ctrl || k.Alt || k.Meta
}

// Action is what a key press asks the session to do.
type Action string

const (
	ActionNone    Action = "none"
	ActionSubmit  Action = "submit"
	ActionNewline Action = "newline"
)

// Composer is a draft whose plain-text length never exceeds its budget.
type Composer struct {
	max      int
	onChange func()

	mu     sync.Mutex
	pieces []Piece
}

// New builds an empty composer with a character budget.
func New(maxLength int, onChange func()) *Composer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Composer{max: maxLength, onChange: onChange}
}

// MaxLength is the character budget.
func (c *Composer) MaxLength() int {
	return c.max
}

// Text returns the draft as plain text; emotes appear as their names.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text()
}

func (c *Composer) text() string {
	var b strings.Builder
	for _, p := range c.pieces {
		b.WriteString(p.Value)
	}
	return b.String()
}

// Len is the plain-text length in characters.
func (c *Composer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utf8.RuneCountInString(c.text())
}

// Remaining is the number of characters left in the budget.
func (c *Composer) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max - utf8.RuneCountInString(c.text())
}

// Empty reports whether the draft has no visible content.
func (c *Composer) Empty() bool {
	return strings.TrimSpace(c.Text()) == ""
}

// Pieces returns the draft structure for rendering emote chips.
func (c *Composer) Pieces() []Piece {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Piece, len(c.pieces))
	copy(out, c.pieces)
	return out
}

// SetText replaces the draft with typed text, truncated to the budget.
func (c *Composer) SetText(text string) {
	text = truncate(sanitize(text), c.max)
	c.mu.Lock()
	c.pieces = nil
	if text != "" {
		c.pieces = []Piece{{Value: text}}
	}
	c.mu.Unlock()
	c.onChange()
}

// InsertEmote appends an emote token, separated by single spaces. The
// insertion is refused when the result would exceed the budget.
func (c *Composer) InsertEmote(name string) error {
	if name == "" {
		return errs.ErrEmptyDraft
	}
	c.mu.Lock()
	current := c.text()
	var add []Piece
	if current != "" && !endsWithSpace(current) {
		add = append(add, Piece{Value: " "})
	}
	add = append(add, Piece{Value: name, Emote: true}, Piece{Value: " "})

	size := utf8.RuneCountInString(current)
	for _, p := range add {
		size += utf8.RuneCountInString(p.Value)
	}
	if size > c.max {
		c.mu.Unlock()
		return errs.ErrDraftTooLong
	}
	for _, p := range add {
		c.appendPiece(p)
	}
	c.mu.Unlock()
	c.onChange()
	return nil
}

// Paste appends sanitized plain text truncated to the remaining budget and
// returns the number of characters inserted.
func (c *Composer) Paste(text string) int {
	text = sanitize(text)
	c.mu.Lock()
	remaining := c.max - utf8.RuneCountInString(c.text())
	text = truncate(text, remaining)
	if text == "" {
		c.mu.Unlock()
		return 0
	}
	c.appendPiece(Piece{Value: text})
	c.mu.Unlock()
	c.onChange()
	return utf8.RuneCountInString(text)
}

// HandleKey maps Enter to submit and modifier+Enter to a literal newline.
func (c *Composer) HandleKey(ev KeyEvent) Action {
	if ev.Key != "Enter" {
		return ActionNone
	}
	if !ev.modified() {
		return ActionSubmit
	}
	if c.Paste("\n") == 0 {
		return ActionNone
	}
	return ActionNewline
}

// Clear empties the draft.
func (c *Composer) Clear() {
	c.mu.Lock()
	c.pieces = nil
	c.mu.Unlock()
	c.onChange()
}

// ClearIf empties the draft only while it still reads text. It reports
// whether the draft was cleared.
func (c *Composer) ClearIf(text string) bool {
	c.mu.Lock()
	if c.text() != text {
		c.mu.Unlock()
		return false
	}
	c.pieces = nil
	c.mu.Unlock()
	c.onChange()
	return true
}

func (c *Composer) appendPiece(p Piece) {
	n := len(c.pieces)
	if !p.Emote && n > 0 && !c.pieces[n-1].Emote {
		c.pieces[n-1].Value += p.Value
		return
	}
	c.pieces = append(c.pieces, p)
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

// sanitize reduces pasted content to plain text: line endings become \n
// and control or format characters other than tab and zero-width joiner
// are dropped.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t' || r == '\u200d':
			return r
		case r == utf8.RuneError:
			return -1
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
