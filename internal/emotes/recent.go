package emotes

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"chat-engine/internal/models"
)

const DefaultRecentLimit = 24

// KV is the small key/value store that persists recently used emotes.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Recents is a bounded, most-recent-first, deduplicated emote list.
type Recents struct {
	kv    KV
	key   string
	limit int

	mu   sync.Mutex
	list []models.CachedEmote
}

// NewRecents builds the recently-used list for one user.
func NewRecents(kv KV, userID string, limit int) *Recents {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Recents{kv: kv, key: RecentKey(userID), limit: limit}
}

// RecentKey is the storage key of a user's recently-used list.
func RecentKey(userID string) string {
	return fmt.Sprintf("emotes.recent:%s", userID)
}

// Load reads the persisted list. A missing key leaves the list empty.
func (r *Recents) Load(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}
	raw, ok, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return fmt.Errorf("load recent emotes: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}
	var list []models.CachedEmote
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		log.Printf("recent emotes corrupt, resetting key=%s err=%v", r.key, err)
		return nil
	}
	r.mu.Lock()
	r.list = dedupe(list, r.limit)
	r.mu.Unlock()
	return nil
}

// Use moves emote to the front and persists the list.
func (r *Recents) Use(ctx context.Context, emote models.CachedEmote) error {
	r.mu.Lock()
	next := make([]models.CachedEmote, 0, len(r.list)+1)
	next = append(next, emote)
	next = append(next, r.list...)
	r.list = dedupe(next, r.limit)
	snapshot := make([]models.CachedEmote, len(r.list))
	copy(snapshot, r.list)
	r.mu.Unlock()

	if r.kv == nil {
		return nil
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := r.kv.Set(ctx, r.key, string(body)); err != nil {
		return fmt.Errorf("save recent emotes: %w", err)
	}
	return nil
}

// List returns the recently used emotes, most recent first.
func (r *Recents) List() []models.CachedEmote {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.CachedEmote, len(r.list))
	copy(out, r.list)
	return out
}

func dedupe(list []models.CachedEmote, limit int) []models.CachedEmote {
	seen := make(map[string]struct{}, len(list))
	out := make([]models.CachedEmote, 0, limit)
	for _, e := range list {
		if _, ok := seen[e.Name]; ok || e.Name == "" {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}
