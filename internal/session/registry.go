package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/ratelimit"
)

// ErrUnknownSession is returned for tokens or ids without a session.
var ErrUnknownSession = errors.New("unknown session")

// Remote is a Backend that can also identify the token's user.
type Remote interface {
	Backend
	FetchSessionUser(ctx context.Context) (models.User, error)
}

// Dialer returns the backend view of one bearer token.
type Dialer func(token string) Remote

// Lifecycle events passed to a Hook.
const (
	EventCreated = "created"
	EventLogout  = "logout"
	EventIdle    = "idle"
)

// Hook observes session creation and teardown.
type Hook func(event string, s *Session)

// Registry maps bearer tokens to live sessions.
type Registry struct {
	base context.Context
	dial Dialer
	opts Options
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	byToken map[string]*Session
	byID    map[string]*Session
	hook    Hook
}

// NewRegistry builds an empty registry. Sessions idle longer than ttl are
// removed by Sweep; a non-positive ttl disables expiry.
func NewRegistry(base context.Context, dial Dialer, opts Options, ttl time.Duration) *Registry {
	return &Registry{
		base:    base,
		dial:    dial,
		opts:    opts,
		ttl:     ttl,
		now:     time.Now,
		byToken: make(map[string]*Session),
		byID:    make(map[string]*Session),
	}
}

// SetHook installs fn as the lifecycle observer.
func (r *Registry) SetHook(fn Hook) {
	r.mu.Lock()
	r.hook = fn
	r.mu.Unlock()
}

func (r *Registry) notify(event string, s *Session) {
	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(event, s)
	}
}

// Acquire returns the token's session, creating and starting it on first
// use. A failed initial channel load does not fail Acquire; the session
// carries the recoverable error.
func (r *Registry) Acquire(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnknownSession
	}
	if s, ok := r.Lookup(token); ok {
		s.Touch()
		return s, nil
	}

	remote := r.dial(token)
	user, err := remote.FetchSessionUser(ctx)
	if err != nil {
		return nil, errs.Transport("fetch session user", err)
	}

	r.mu.Lock()
	if existing, ok := r.byToken[token]; ok {
		r.mu.Unlock()
		existing.Touch()
		return existing, nil
	}
	opts := r.opts
	s := New(r.base, ulid.Make().String(), user, remote, opts)
	r.byToken[token] = s
	r.byID[s.ID()] = s
	n := len(r.byToken)
	r.mu.Unlock()
	observability.SetActiveSessions(n)
	log.Printf("session created session_id=%s user_id=%s tier=%s", s.ID(), user.ID, user.Tier)

	if err := s.Start(ctx); err != nil {
		log.Printf("session start incomplete session_id=%s err=%v", s.ID(), err)
	}
	r.notify(EventCreated, s)
	return s, nil
}

// Lookup finds the session of a token without creating one.
func (r *Registry) Lookup(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	return s, ok
}

// Get finds a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Remove closes and forgets the token's session.
func (r *Registry) Remove(token string) bool {
	r.mu.Lock()
	s, ok := r.byToken[token]
	if ok {
		delete(r.byToken, token)
		delete(r.byID, s.ID())
	}
	n := len(r.byToken)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	observability.SetActiveSessions(n)
	log.Printf("session closed session_id=%s reason=logout", s.ID())
	r.notify(EventLogout, s)
	return true
}

// Sweep closes sessions idle for longer than the ttl and returns how many
// were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	var expired []*Session
	r.mu.Lock()
	for token, s := range r.byToken {
		if s.LastActive().Before(cutoff) {
			delete(r.byToken, token)
			delete(r.byID, s.ID())
			expired = append(expired, s)
		}
	}
	n := len(r.byToken)
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		log.Printf("session closed session_id=%s reason=idle", s.ID())
		r.notify(EventIdle, s)
	}
	if len(expired) > 0 {
		observability.SetActiveSessions(n)
	}
	return len(expired)
}

// Run sweeps at interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Deliver pushes a live notification to every session of its user and
// returns how many sessions accepted it.
func (r *Registry) Deliver(d models.NotificationDelivery) int {
	r.mu.Lock()
	var targets []*Session
	for _, s := range r.byToken {
		if s.User().ID == d.UserID {
			targets = append(targets, s)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, s := range targets {
		if s.PushNotification(d.Notification) {
			n++
		}
	}
	return n
}

// SetPolicy applies a new cooldown policy to future and live sessions.
func (r *Registry) SetPolicy(p ratelimit.Policy) {
	r.mu.Lock()
	r.opts.Policy = p
	live := make([]*Session, 0, len(r.byToken))
	for _, s := range r.byToken {
		live = append(live, s)
	}
	r.mu.Unlock()
	for _, s := range live {
		s.SetPolicy(p)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byToken))
	for _, s := range r.byToken {
		all = append(all, s)
	}
	r.byToken = make(map[string]*Session)
	r.byID = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	observability.SetActiveSessions(0)
}
