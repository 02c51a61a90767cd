// Package store is the single source of truth for the channel list, the
// active channel and its message window.
package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/ratelimit"
)

const (
	DefaultMaxLength   = 500
	DefaultGroupWindow = 60 * time.Second
	localIDPrefix      = "local-"
)

// Backend is the remote source of channels and messages.
type Backend interface {
	FetchChannels(ctx context.Context) ([]models.Channel, error)
	FetchMessages(ctx context.Context, channelID string) ([]models.Message, error)
	PostMessage(ctx context.Context, channelID, text string) (models.Message, error)
}

// Subscriber is implemented by backends that push live channel messages.
// The returned channel is closed when ctx is cancelled.
type Subscriber interface {
	SubscribeChannel(ctx context.Context, channelID string) (<-chan models.Message, error)
}

// Options tune a Store.
type Options struct {
	MaxLength   int
	GroupWindow time.Duration
	Location    *time.Location
	Now         func() time.Time
}

// State is a copy of the store for snapshots.
type State struct {
	Channels        []models.Channel          `json:"channels"`
	Active          mo.Option[models.Channel] `json:"active_channel"`
	Messages        []models.Message          `json:"messages"`
	NewMessages     int                       `json:"new_message_count"`
	AtBottom        bool                      `json:"at_bottom"`
	ScrollSeq       uint64                    `json:"scroll_seq"`
	LoadingChannels bool                      `json:"loading_channels"`
	LoadingMessages bool                      `json:"loading_messages"`
	Error           string                    `json:"error,omitempty"`
}

// Store owns channels and the active message window for one session.
type Store struct {
	backend  Backend
	user     models.User
	limiter  *ratelimit.Limiter
	opts     Options
	base     context.Context
	onChange func()

	mu              sync.Mutex
	channels        []models.Channel
	active          mo.Option[models.Channel]
	messages        []models.Message
	backlog         int
	atBottom        bool
	scrollSeq       uint64
	loadingChannels bool
	loadingMessages bool
	err             error
	loadSeq         uint64
	liveCancel      context.CancelFunc
}

// New builds a store. base bounds the lifetime of live subscriptions.
func New(base context.Context, backend Backend, user models.User, limiter *ratelimit.Limiter, opts Options, onChange func()) *Store {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.GroupWindow <= 0 {
		opts.GroupWindow = DefaultGroupWindow
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Store{
		backend:  backend,
		user:     user,
		limiter:  limiter,
		opts:     opts,
		base:     base,
		onChange: onChange,
		atBottom: true,
	}
}

// LoadChannels replaces the channel list. The selection is left alone.
func (s *Store) LoadChannels(ctx context.Context) error {
	s.mu.Lock()
	s.loadingChannels = true
	s.mu.Unlock()
	s.onChange()

	channels, err := s.backend.FetchChannels(ctx)

	s.mu.Lock()
	s.loadingChannels = false
	if err != nil {
		s.err = errs.Transport("load channels", err)
		err = s.err
		s.mu.Unlock()
		log.Printf("load channels failed user_id=%s err=%v", s.user.ID, err)
		s.onChange()
		return err
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	s.channels = channels
	s.mu.Unlock()
	s.onChange()
	return nil
}

// Channel looks up a loaded channel by id.
func (s *Store) Channel(id string) (models.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return models.Channel{}, false
}

// Active returns the selected channel, if any.
func (s *Store) Active() mo.Option[models.Channel] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SelectChannel makes ch active, resets the backlog and replaces the
// message window. Switching to a different channel ends any send cooldown;
// reselecting the active one does not. A response for a channel that is no
// longer active is dropped.
func (s *Store) SelectChannel(ctx context.Context, ch models.Channel) error {
	if !ch.Accessible(s.user.Tier) {
		return errs.ErrChannelLocked
	}

	s.mu.Lock()
	prev, had := s.active.Get()
	switched := !had || prev.ID != ch.ID
	if s.liveCancel != nil {
		s.liveCancel()
		s.liveCancel = nil
	}
	s.active = mo.Some(ch)
	s.backlog = 0
	s.atBottom = true
	s.messages = nil
	s.err = nil
	s.loadSeq++
	seq := s.loadSeq
	s.loadingMessages = true
	s.mu.Unlock()
	if switched && s.limiter != nil {
		s.limiter.Reset()
	}
	s.onChange()

	msgs, err := s.backend.FetchMessages(ctx, ch.ID)

	s.mu.Lock()
	if seq != s.loadSeq {
		s.mu.Unlock()
		log.Printf("message load discarded channel_id=%s: %v", ch.ID, errs.ErrStaleResponse)
		observability.IncStaleResponse("messages")
		return nil
	}
	s.loadingMessages = false
	if err != nil {
		s.err = errs.Transport("load messages", err)
		err = s.err
		s.mu.Unlock()
		log.Printf("load messages failed channel_id=%s err=%v", ch.ID, err)
		s.onChange()
		return err
	}
	s.messages = normalize(msgs, ch.ID)
	s.scrollSeq++
	s.mu.Unlock()
	s.onChange()

	s.subscribe(ch.ID, seq)
	return nil
}

// ReloadMessages refetches the active channel's window, typically after an
// error. The send cooldown keeps running.
func (s *Store) ReloadMessages(ctx context.Context) error {
	ch, ok := s.Active().Get()
	if !ok {
		return errs.ErrNoActiveChannel
	}
	return s.SelectChannel(ctx, ch)
}

func (s *Store) subscribe(channelID string, seq uint64) {
	sub, ok := s.backend.(Subscriber)
	if !ok || s.base == nil {
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	feed, err := sub.SubscribeChannel(ctx, channelID)
	if err != nil {
		cancel()
		log.Printf("live feed unavailable channel_id=%s err=%v", channelID, err)
		return
	}

	s.mu.Lock()
	if seq != s.loadSeq {
		s.mu.Unlock()
		cancel()
		return
	}
	s.liveCancel = cancel
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-feed:
				if !ok {
					return
				}
				s.Receive(msg)
			}
		}
	}()
}

// SendMessage validates text, appends an optimistic message, engages the
// rate limiter and posts the message. Validation failures return before
// any network call. A transport failure keeps the optimistic entry,
// marked failed, and sets the recoverable error.
func (s *Store) SendMessage(ctx context.Context, text string) (models.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		observability.IncSend("rejected_empty")
		return models.Message{}, errs.ErrEmptyDraft
	}
	if utf8.RuneCountInString(text) > s.opts.MaxLength {
		observability.IncSend("rejected_too_long")
		return models.Message{}, errs.ErrDraftTooLong
	}

	s.mu.Lock()
	ch, ok := s.active.Get()
	if !ok {
		s.mu.Unlock()
		observability.IncSend("rejected_no_channel")
		return models.Message{}, errs.ErrNoActiveChannel
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.mu.Unlock()
		observability.IncSend("rejected_rate_limited")
		return models.Message{}, errs.ErrRateLimited
	}
	optimistic := models.Message{
		ID:              localIDPrefix + uuid.NewString(),
		ChannelID:       ch.ID,
		UserID:          s.user.ID,
		UserDisplayName: s.user.DisplayName,
		UserTier:        s.user.Tier,
		Content:         content,
		CreatedAt:       s.opts.Now(),
		ReactionSummary: map[string]int{},
		Pending:         true,
	}
	s.messages = append(s.messages, optimistic)
	s.scrollSeq++
	s.touchChannel(ch.ID, optimistic.CreatedAt)
	if s.limiter != nil {
		s.limiter.Engage(s.user.Tier)
	}
	s.mu.Unlock()
	observability.IncSend("accepted")
	s.onChange()

	posted, err := s.backend.PostMessage(ctx, ch.ID, content)

	s.mu.Lock()
	idx := s.indexOf(optimistic.ID)
	if err != nil {
		err = errs.Transport("send message", err)
		if cur, ok := s.active.Get(); ok && cur.ID == ch.ID {
			s.err = err
		}
		if idx >= 0 {
			s.messages[idx].Pending = false
			s.messages[idx].Failed = true
		}
		s.mu.Unlock()
		observability.IncSend("failed")
		log.Printf("send message failed channel_id=%s err=%v", ch.ID, err)
		s.onChange()
		return optimistic, err
	}
	if posted.ChannelID == "" {
		posted.ChannelID = ch.ID
	}
	if posted.ReactionSummary == nil {
		posted.ReactionSummary = map[string]int{}
	}
	s.reconcile(idx, posted)
	s.mu.Unlock()
	s.onChange()
	return posted, nil
}

// reconcile replaces the optimistic entry at idx with the server message.
// If the server message is already in the window the optimistic entry is
// dropped instead.
func (s *Store) reconcile(idx int, posted models.Message) {
	if idx < 0 {
		return
	}
	if posted.ID == "" {
		s.messages[idx].Pending = false
		return
	}
	if existing := s.indexOf(posted.ID); existing >= 0 {
		s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
		return
	}
	s.messages[idx] = posted
}

// Receive applies a live message. It reports whether the consumer should
// auto-scroll; when the consumer is not at the bottom the new-message
// backlog grows instead.
func (s *Store) Receive(msg models.Message) bool {
	s.mu.Lock()
	ch, ok := s.active.Get()
	if !ok || msg.ChannelID != ch.ID {
		s.touchChannel(msg.ChannelID, msg.CreatedAt)
		s.mu.Unlock()
		return false
	}
	if msg.ID == "" || s.indexOf(msg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	if msg.ReactionSummary == nil {
		msg.ReactionSummary = map[string]int{}
	}
	s.touchChannel(msg.ChannelID, msg.CreatedAt)

	if idx := s.pendingEcho(msg); idx >= 0 {
		s.messages[idx] = msg
		s.mu.Unlock()
		s.onChange()
		return false
	}

	s.messages = append(s.messages, msg)
	scroll := s.atBottom
	if scroll {
		s.scrollSeq++
	} else {
		s.backlog++
	}
	s.mu.Unlock()
	s.onChange()
	return scroll
}

// pendingEcho finds our own optimistic message that msg confirms.
func (s *Store) pendingEcho(msg models.Message) int {
	if msg.UserID != s.user.ID {
		return -1
	}
	for i, m := range s.messages {
		if m.Pending && m.Content == msg.Content {
			return i
		}
	}
	return -1
}

// SetAtBottom records whether the consumer's view is scrolled to the end.
func (s *Store) SetAtBottom(atBottom bool) {
	s.mu.Lock()
	changed := s.atBottom != atBottom
	s.atBottom = atBottom
	s.mu.Unlock()
	if changed {
		s.onChange()
	}
}

// JumpToBottom resets the backlog and asks the consumer to scroll.
func (s *Store) JumpToBottom() {
	s.mu.Lock()
	s.backlog = 0
	s.atBottom = true
	s.scrollSeq++
	s.mu.Unlock()
	s.onChange()
}

// ClearError dismisses the recoverable error.
func (s *Store) ClearError() {
	s.mu.Lock()
	had := s.err != nil
	s.err = nil
	s.mu.Unlock()
	if had {
		s.onChange()
	}
}

// Err returns the recoverable error, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Message returns a copy of a message in the window.
func (s *Store) Message(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.messages[idx].Clone(), true
	}
	return models.Message{}, false
}

// UpdateReactions applies fn to the reaction summary of a message. fn
// reports whether it changed anything.
func (s *Store) UpdateReactions(messageID string, fn func(summary map[string]int) bool) (models.Message, error) {
	s.mu.Lock()
	idx := s.indexOf(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("message %s: %w", messageID, errs.ErrNotFound)
	}
	if s.messages[idx].ReactionSummary == nil {
		s.messages[idx].ReactionSummary = map[string]int{}
	}
	changed := fn(s.messages[idx].ReactionSummary)
	out := s.messages[idx].Clone()
	s.mu.Unlock()
	if changed {
		s.onChange()
	}
	return out, nil
}

// Rows groups the message window for display.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	msgs := s.copyMessages()
	s.mu.Unlock()
	return GroupRows(msgs, s.opts.GroupWindow, s.opts.Location)
}

// State returns a copy for snapshots.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := make([]models.Channel, len(s.channels))
	copy(channels, s.channels)
	st := State{
		Channels:        channels,
		Active:          s.active,
		Messages:        s.copyMessages(),
		NewMessages:     s.backlog,
		AtBottom:        s.atBottom,
		ScrollSeq:       s.scrollSeq,
		LoadingChannels: s.loadingChannels,
		LoadingMessages: s.loadingMessages,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// Close stops the live subscription.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liveCancel != nil {
		s.liveCancel()
		s.liveCancel = nil
	}
	s.loadSeq++
}

func (s *Store) copyMessages() []models.Message {
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) indexOf(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) touchChannel(channelID string, at time.Time) {
	for i := range s.channels {
		if s.channels[i].ID != channelID {
			continue
		}
		if last, ok := s.channels[i].LastMessageAt.Get(); !ok || at.After(last) {
			s.channels[i].LastMessageAt = mo.Some(at)
		}
	}
	if ch, ok := s.active.Get(); ok && ch.ID == channelID {
		if last, ok := ch.LastMessageAt.Get(); !ok || at.After(last) {
			ch.LastMessageAt = mo.Some(at)
			s.active = mo.Some(ch)
		}
	}
}

// normalize orders a loaded window by creation time and drops duplicate ids.
func normalize(msgs []models.Message, channelID string) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.ChannelID == "" {
			m.ChannelID = channelID
		}
		if m.ReactionSummary == nil {
			m.ReactionSummary = map[string]int{}
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
