// Package notifications keeps the unread-aware notification list for a
// session, independent of the active channel.
package notifications

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

const DefaultPulseDuration = 1500 * time.Millisecond

// Backend is the remote notification source.
type Backend interface {
	FetchNotifications(ctx context.Context) ([]models.NotificationItem, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// State is a copy of the center for snapshots.
type State struct {
	Items        []models.NotificationItem `json:"items"`
	UnreadCount  int                       `json:"unread_count"`
	DropdownOpen bool                      `json:"dropdown_open"`
	Pulsing      bool                      `json:"pulsing"`
	Loading      bool                      `json:"loading"`
	Error        string                    `json:"error,omitempty"`
}

// Center holds notifications newest first.
type Center struct {
	backend  Backend
	pulseFor time.Duration
	onChange func()

	mu       sync.Mutex
	items    []models.NotificationItem
	open     bool
	pulsing  bool
	pulseGen uint64
	timer    *time.Timer
	loading  bool
	loadSeq  uint64
	err      error
}

// New builds an empty center. A non-positive pulse duration uses the
// default.
func New(backend Backend, pulseFor time.Duration, onChange func()) *Center {
	if pulseFor <= 0 {
		pulseFor = DefaultPulseDuration
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Center{backend: backend, pulseFor: pulseFor, onChange: onChange}
}

// Refresh replaces the list with the server's. Unread items the center had
// not seen before trigger a pulse. Only the latest refresh is applied.
func (c *Center) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.loading = true
	c.mu.Unlock()
	c.onChange()

	items, err := c.backend.FetchNotifications(ctx)

	c.mu.Lock()
	if seq != c.loadSeq {
		c.mu.Unlock()
		log.Printf("notification refresh discarded: %v", errs.ErrStaleResponse)
		observability.IncStaleResponse("notifications")
		return nil
	}
	c.loading = false
	if err != nil {
		c.err = errs.Transport("fetch notifications", err)
		err = c.err
		c.mu.Unlock()
		log.Printf("fetch notifications failed err=%v", err)
		c.onChange()
		return err
	}
	known := make(map[string]struct{}, len(c.items))
	for _, it := range c.items {
		known[it.ID] = struct{}{}
	}
	fresh := false
	list := make([]models.NotificationItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		if _, ok := known[it.ID]; !ok && !it.IsRead {
			fresh = true
		}
		list = append(list, it)
	}
	sortNewestFirst(list)
	c.items = list
	c.err = nil
	c.mu.Unlock()

	if fresh {
		c.Pulse()
	}
	c.onChange()
	return nil
}

// Push adds a live notification. It reports whether the item was new.
func (c *Center) Push(item models.NotificationItem) bool {
	c.mu.Lock()
	for _, it := range c.items {
		if it.ID == item.ID {
			c.mu.Unlock()
			observability.IncNotificationDelivery("push", "duplicate")
			return false
		}
	}
	c.items = append(c.items, item)
	sortNewestFirst(c.items)
	c.mu.Unlock()

	observability.IncNotificationDelivery("push", "ok")
	if !item.IsRead {
		c.Pulse()
	}
	c.onChange()
	return true
}

// MarkAsRead flips one item to read. Marking a read item again is a no-op.
// The local change is kept even when the remote call fails.
func (c *Center) MarkAsRead(ctx context.Context, id string) error {
	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("notification %s: %w", id, errs.ErrNotFound)
	}
	if c.items[idx].IsRead {
		c.mu.Unlock()
		return nil
	}
	c.items[idx].IsRead = true
	c.mu.Unlock()
	c.onChange()

	if err := c.backend.MarkNotificationRead(ctx, id); err != nil {
		log.Printf("mark notification read failed id=%s err=%v", id, err)
	}
	return nil
}

// MarkAllAsRead flips every item and zeroes the unread count in one step,
// then tells the server about each item that was unread.
func (c *Center) MarkAllAsRead(ctx context.Context) {
	c.mu.Lock()
	var ids []string
	for i := range c.items {
		if !c.items[i].IsRead {
			c.items[i].IsRead = true
			ids = append(ids, c.items[i].ID)
		}
	}
	c.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	c.onChange()

	for _, id := range ids {
		if err := c.backend.MarkNotificationRead(ctx, id); err != nil {
			log.Printf("mark notification read failed id=%s err=%v", id, err)
		}
	}
}

// SetDropdownOpen records whether the notification list is shown.
func (c *Center) SetDropdownOpen(open bool) {
	c.mu.Lock()
	changed := c.open != open
	c.open = open
	c.mu.Unlock()
	if changed {
		c.onChange()
	}
}

// Pulse raises the attention flag. It clears itself after the pulse
// duration; a new pulse restarts the clock.
func (c *Center) Pulse() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.pulseGen++
	gen := c.pulseGen
	c.pulsing = true
	c.timer = time.AfterFunc(c.pulseFor, func() { c.endPulse(gen) })
	c.mu.Unlock()
	c.onChange()
}

func (c *Center) endPulse(gen uint64) {
	c.mu.Lock()
	if gen != c.pulseGen || !c.pulsing {
		c.mu.Unlock()
		return
	}
	c.pulsing = false
	c.timer = nil
	c.mu.Unlock()
	c.onChange()
}

// UnreadCount returns the number of unread items.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread()
}

// ClearError dismisses the last fetch error.
func (c *Center) ClearError() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
}

// State returns a copy for snapshots.
func (c *Center) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]models.NotificationItem, len(c.items))
	copy(items, c.items)
	st := State{
		Items:        items,
		UnreadCount:  c.unread(),
		DropdownOpen: c.open,
		Pulsing:      c.pulsing,
		Loading:      c.loading,
	}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	return st
}

// Close stops the pulse timer.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pulseGen++
	c.pulsing = false
}

func (c *Center) unread() int {
	n := 0
	for _, it := range c.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func (c *Center) indexOf(id string) int {
	for i, it := range c.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func sortNewestFirst(items []models.NotificationItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}
