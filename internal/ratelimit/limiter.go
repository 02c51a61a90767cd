// Package ratelimit is the client-side send cooldown. The server enforces
// the same rule independently; this limiter only blocks sends that would
// obviously be rejected and drives the countdown shown to the user.
package ratelimit

import (
	"sync"
	"time"

	"chat-engine/internal/models"
)

// Policy maps tiers to cooldowns. Tiers at or above ExemptFrom are never
// limited.
type Policy struct {
	CooldownSeconds map[models.Tier]int
	ExemptFrom      models.Tier
}

// DefaultPolicy limits Standard and VIP accounts.
func DefaultPolicy() Policy {
	return Policy{
		CooldownSeconds: map[models.Tier]int{
			models.TierStandard: 5,
			models.TierVIP:      2,
		},
		ExemptFrom: models.TierHighRoller,
	}
}

// CooldownFor returns the cooldown in seconds after a send by tier.
func (p Policy) CooldownFor(tier models.Tier) int {
	if p.ExemptFrom != "" && tier.AtLeast(p.ExemptFrom) {
		return 0
	}
	if n := p.CooldownSeconds[tier]; n > 0 {
		return n
	}
	return 0
}

// Limiter is the Idle -> Limited(N) -> Idle state machine for one
// composition context.
type Limiter struct {
	tick     time.Duration
	onChange func()

	mu        sync.Mutex
	policy    Policy
	remaining int
	gen       uint64
	stop      chan struct{}
}

// New builds an idle limiter. tick is the countdown step (one second in
// production).
func New(policy Policy, tick time.Duration, onChange func()) *Limiter {
	if tick <= 0 {
		tick = time.Second
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Limiter{policy: policy, tick: tick, onChange: onChange}
}

// SetPolicy swaps the policy used for future sends.
func (l *Limiter) SetPolicy(p Policy) {
	l.mu.Lock()
	l.policy = p
	l.mu.Unlock()
}

// State returns the current cooldown state.
func (l *Limiter) State() models.RateLimitState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.RateLimitState{IsLimited: l.remaining > 0, RemainingSeconds: l.remaining}
}

// Allow reports whether a send may proceed.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining == 0
}

// Engage starts the cooldown after a send by tier. It reports whether the
// limiter entered the Limited state.
func (l *Limiter) Engage(tier models.Tier) bool {
	l.mu.Lock()
	n := l.policy.CooldownFor(tier)
	if n == 0 {
		l.mu.Unlock()
		return false
	}
	if l.stop != nil {
		close(l.stop)
	}
	l.gen++
	l.remaining = n
	l.stop = make(chan struct{})
	go l.run(l.gen, l.stop)
	l.mu.Unlock()
	l.onChange()
	return true
}

// Reset cancels any running countdown and returns to Idle.
func (l *Limiter) Reset() {
	l.mu.Lock()
	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
	l.gen++
	changed := l.remaining > 0
	l.remaining = 0
	l.mu.Unlock()
	if changed {
		l.onChange()
	}
}

func (l *Limiter) run(gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(l.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			l.mu.Lock()
			if l.gen != gen {
				l.mu.Unlock()
				return
			}
			l.remaining--
			done := l.remaining <= 0
			if done {
				l.remaining = 0
				l.stop = nil
			}
			l.mu.Unlock()
			l.onChange()
			if done {
				return
			}
		}
	}
}

func (l *Limiter) ticking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}
