// Package session wires one instance of every engine component for a
// single signed-in user and publishes coalesced state snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/mo"

	"chat-engine/internal/composer"
	"chat-engine/internal/config"
	"chat-engine/internal/emotes"
	"chat-engine/internal/errs"
	"chat-engine/internal/models"
	"chat-engine/internal/notifications"
	"chat-engine/internal/ratelimit"
	"chat-engine/internal/reactions"
	"chat-engine/internal/store"
	"chat-engine/internal/stream"
)

// Backend is everything a session needs from the server of record.
type Backend interface {
	store.Backend
	reactions.Backend
	notifications.Backend
	stream.Backend
	emotes.Source
	TranslateMessage(ctx context.Context, msg models.Message) mo.Option[string]
}

// Options configure a session.
type Options struct {
	Engine config.Engine
	Policy ratelimit.Policy
	KV     emotes.KV
}

// Session is the explicit context object of one user. It owns every
// component; nothing is shared between sessions.
type Session struct {
	id      string
	user    models.User
	backend Backend

	ctx    context.Context
	cancel context.CancelFunc

	catalog  *emotes.Catalog
	searcher *emotes.Searcher
	recents  *emotes.Recents
	composer *composer.Composer
	limiter  *ratelimit.Limiter
	store    *store.Store
	reacts   *reactions.Aggregator
	center   *notifications.Center
	stream   *stream.Binding

	catalogEvery time.Duration
	refresher    sync.Once

	changes    chan struct{}
	version    atomic.Uint64
	lastActive atomic.Int64
	closed     atomic.Bool

	mu           sync.Mutex
	subs         map[uint64]chan Snapshot
	nextSub      uint64
	translations map[string]string
}

// New builds a session bound to base. Call Start to load initial state.
func New(base context.Context, id string, user models.User, backend Backend, opts Options) *Session {
	ctx, cancel := context.WithCancel(base)
	s := &Session{
		id:           id,
		user:         user,
		backend:      backend,
		ctx:          ctx,
		cancel:       cancel,
		changes:      make(chan struct{}, 1),
		subs:         make(map[uint64]chan Snapshot),
		translations: make(map[string]string),
	}
	s.Touch()

	eng := opts.Engine
	s.catalogEvery = eng.CatalogRefresh
	if s.catalogEvery <= 0 {
		s.catalogEvery = emotes.DefaultRefreshInterval
	}
	s.catalog = emotes.NewCatalog(backend, emotes.Options{
		RefreshInterval: eng.CatalogRefresh,
		PageSize:        eng.SearchPageSize,
	}, s.signal)
	s.searcher = emotes.NewSearcher(ctx, s.catalog, eng.SearchDebounce, s.signal)
	s.recents = emotes.NewRecents(opts.KV, user.ID, eng.RecentLimit)
	s.composer = composer.New(eng.MaxMessageLength, s.signal)
	s.limiter = ratelimit.New(opts.Policy, eng.RateLimitTick, s.signal)
	s.store = store.New(ctx, backend, user, s.limiter, store.Options{
		MaxLength:   eng.MaxMessageLength,
		GroupWindow: eng.GroupWindow,
		Location:    eng.Location,
	}, s.signal)
	s.reacts = reactions.New(backend, s.store)
	s.center = notifications.New(backend, eng.PulseDuration, s.signal)
	s.stream = stream.New(ctx, backend, eng.StreamPoll, s.signal)

	go s.pump()
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) User() models.User { return s.user }

// Touch records activity for idle expiry.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last recorded activity.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Start loads the emote catalog, the recently used emotes, the channel
// list and the notifications. Only a channel list failure is returned;
// the others leave their component in its error state.
func (s *Session) Start(ctx context.Context) error {
	if err := s.recents.Load(ctx); err != nil {
		log.Printf("session start: recents unavailable session_id=%s err=%v", s.id, err)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.catalog.Initialize(ctx); err != nil {
			log.Printf("session start: emote catalog unavailable session_id=%s err=%v", s.id, err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.center.Refresh(ctx); err != nil {
			log.Printf("session start: notifications unavailable session_id=%s err=%v", s.id, err)
		}
	}()
	err := s.store.LoadChannels(ctx)
	wg.Wait()
	s.refresher.Do(func() { go s.refreshCatalog() })
	return err
}

// refreshCatalog refetches the global emote set once it is older than the
// refresh interval, or after a failed fetch, until the session closes.
func (s *Session) refreshCatalog() {
	ticker := time.NewTicker(s.catalogEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.catalog.Initialize(s.ctx); err != nil && s.ctx.Err() == nil {
				log.Printf("emote catalog refresh failed session_id=%s err=%v", s.id, err)
			}
		}
	}
}

// Close tears down every timer, subscription and poller. It is safe to
// call more than once.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.searcher.Cancel()
	s.limiter.Reset()
	s.store.Close()
	s.center.Close()
	s.stream.Close()
	s.cancel()

	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Channels

func (s *Session) LoadChannels(ctx context.Context) error {
	s.Touch()
	return s.store.LoadChannels(ctx)
}

// SelectChannel activates a loaded channel and binds its stream.
func (s *Session) SelectChannel(ctx context.Context, channelID string) error {
	s.Touch()
	ch, ok := s.store.Channel(channelID)
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, errs.ErrNotFound)
	}
	err := s.store.SelectChannel(ctx, ch)
	if errors.Is(err, errs.ErrValidation) {
		return err
	}
	s.stream.Bind(channelID)
	return err
}

func (s *Session) ReloadMessages(ctx context.Context) error {
	s.Touch()
	return s.store.ReloadMessages(ctx)
}

// Draft

func (s *Session) SetDraft(text string) {
	s.Touch()
	s.composer.SetText(text)
}

// InsertEmote appends a known emote token to the draft and records it as
// recently used. Emotes found only in the current search results are
// merged into the catalog first.
func (s *Session) InsertEmote(ctx context.Context, name string) error {
	s.Touch()
	emote, ok := s.catalog.Snapshot().Lookup(name)
	if !ok {
		if err := s.catalog.Initialize(ctx); err == nil {
			emote, ok = s.catalog.Snapshot().Lookup(name)
		}
	}
	if !ok {
		for _, e := range s.searcher.State().Results {
			if e.Name == name {
				emote, ok = e, true
				s.catalog.AddEmote(e)
				break
			}
		}
	}
	if !ok {
		return fmt.Errorf("emote %s: %w", name, errs.ErrNotFound)
	}
	if err := s.composer.InsertEmote(name); err != nil {
		return err
	}
	if err := s.recents.Use(ctx, emote); err != nil {
		log.Printf("recent emote not saved session_id=%s emote=%s err=%v", s.id, name, err)
	}
	s.signal()
	return nil
}

// Paste inserts sanitized text and returns the number of characters kept.
func (s *Session) Paste(text string) int {
	s.Touch()
	return s.composer.Paste(text)
}

// HandleKey applies a key press; Enter without modifiers submits.
func (s *Session) HandleKey(ctx context.Context, ev composer.KeyEvent) (composer.Action, mo.Option[models.Message], error) {
	s.Touch()
	action := s.composer.HandleKey(ev)
	if action != composer.ActionSubmit {
		return action, mo.None[models.Message](), nil
	}
	msg, err := s.Submit(ctx)
	if err != nil {
		return action, mo.None[models.Message](), err
	}
	return action, mo.Some(msg), nil
}

// Submit sends the draft. The draft is cleared unless validation rejected
// it; a transport failure leaves the failed message in the window. Text
// typed while the send was in flight is kept.
func (s *Session) Submit(ctx context.Context) (models.Message, error) {
	s.Touch()
	text := s.composer.Text()
	msg, err := s.store.SendMessage(ctx, text)
	if err != nil && errors.Is(err, errs.ErrValidation) {
		return models.Message{}, err
	}
	s.composer.ClearIf(text)
	return msg, err
}

// Messages

func (s *Session) React(ctx context.Context, messageID, emoji string) (models.Message, error) {
	s.Touch()
	return s.reacts.Add(ctx, messageID, emoji)
}

func (s *Session) Unreact(ctx context.Context, messageID, emoji string) (models.Message, error) {
	s.Touch()
	return s.reacts.Remove(ctx, messageID, emoji)
}

// Translate asks the backend for a translation of a loaded message. A
// missing translation is None, not an error.
func (s *Session) Translate(ctx context.Context, messageID string) (mo.Option[string], error) {
	s.Touch()
	s.mu.Lock()
	cached, ok := s.translations[messageID]
	s.mu.Unlock()
	if ok {
		return mo.Some(cached), nil
	}
	msg, ok := s.store.Message(messageID)
	if !ok {
		return mo.None[string](), fmt.Errorf("message %s: %w", messageID, errs.ErrNotFound)
	}
	out := s.backend.TranslateMessage(ctx, msg)
	if text, ok := out.Get(); ok {
		s.mu.Lock()
		s.translations[messageID] = text
		s.mu.Unlock()
		s.signal()
	}
	return out, nil
}

// Scroll

func (s *Session) SetAtBottom(atBottom bool) {
	s.Touch()
	s.store.SetAtBottom(atBottom)
}

func (s *Session) JumpToBottom() {
	s.Touch()
	s.store.JumpToBottom()
}

// ClearError dismisses the recoverable errors of the store and the
// notification center.
func (s *Session) ClearError() {
	s.Touch()
	s.store.ClearError()
	s.center.ClearError()
	s.signal()
}

// Emotes

// Emotes lists the catalog, refetching it first when it has gone stale.
func (s *Session) Emotes(ctx context.Context) []models.CachedEmote {
	if err := s.catalog.Initialize(ctx); err != nil {
		log.Printf("emote catalog unavailable session_id=%s err=%v", s.id, err)
	}
	return s.catalog.Snapshot().List()
}

func (s *Session) RefreshEmotes(ctx context.Context) error {
	s.Touch()
	return s.catalog.Refresh(ctx)
}

func (s *Session) AddEmote(emote models.CachedEmote) bool {
	s.Touch()
	return s.catalog.AddEmote(emote)
}

// SearchEmotes schedules a debounced search; results arrive in snapshots.
func (s *Session) SearchEmotes(query string, page int) {
	s.Touch()
	s.searcher.Query(query, page)
}

// SearchEmotesNow runs a search immediately.
func (s *Session) SearchEmotesNow(ctx context.Context, query string, page int) []models.CachedEmote {
	s.Touch()
	return s.catalog.SearchOnline(ctx, query, page)
}

func (s *Session) RecentEmotes() []models.CachedEmote {
	return s.recents.List()
}

// Notifications

func (s *Session) RefreshNotifications(ctx context.Context) error {
	s.Touch()
	return s.center.Refresh(ctx)
}

func (s *Session) MarkNotificationRead(ctx context.Context, id string) error {
	s.Touch()
	return s.center.MarkAsRead(ctx, id)
}

func (s *Session) MarkAllNotificationsRead(ctx context.Context) {
	s.Touch()
	s.center.MarkAllAsRead(ctx)
}

func (s *Session) SetDropdownOpen(open bool) {
	s.Touch()
	s.center.SetDropdownOpen(open)
}

// PushNotification delivers a live notification to this session.
func (s *Session) PushNotification(item models.NotificationItem) bool {
	return s.center.Push(item)
}

// Stream

func (s *Session) Stream() stream.State {
	return s.stream.State()
}

func (s *Session) RefreshStream(ctx context.Context) error {
	s.Touch()
	return s.stream.Refresh(ctx)
}

// SetPolicy swaps the send cooldown policy.
func (s *Session) SetPolicy(p ratelimit.Policy) {
	s.limiter.SetPolicy(p)
}

// Subscribe returns a channel of snapshots. Only the newest snapshot is
// kept for a slow reader. The channel is closed by cancel or Close.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- s.Snapshot()

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}
}

// signal is every component's change callback. It never blocks.
func (s *Session) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) pump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.changes:
		}
		s.version.Add(1)
		snap := s.Snapshot()

		s.mu.Lock()
		for _, ch := range s.subs {
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
		s.mu.Unlock()
	}
}
