// Package emotes maintains the local emote catalog and turns message text
// into renderable segments.
package emotes

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

const (
	DefaultRefreshInterval = 30 * time.Minute
	DefaultPageSize        = 16
	MinSearchLength        = 2
)

// Source is the remote emote catalog.
type Source interface {
	FetchGlobalEmoteSet(ctx context.Context) ([]models.CachedEmote, error)
	SearchEmotes(ctx context.Context, query string, page, limit int) ([]models.CachedEmote, error)
}

// Index is an immutable catalog snapshot. Renders read it without locking.
type Index struct {
	byID   map[string]models.CachedEmote
	byName map[string]models.CachedEmote
	sorted []models.CachedEmote
}

func newIndex(sets ...[]models.CachedEmote) *Index {
	ix := &Index{
		byID:   make(map[string]models.CachedEmote),
		byName: make(map[string]models.CachedEmote),
	}
	for _, set := range sets {
		for _, e := range set {
			if e.Name == "" {
				continue
			}
			if _, dup := ix.byName[e.Name]; dup {
				continue
			}
			ix.byName[e.Name] = e
			if e.ID != "" {
				ix.byID[e.ID] = e
			}
			ix.sorted = append(ix.sorted, e)
		}
	}
	sort.SliceStable(ix.sorted, func(i, j int) bool {
		a, b := strings.ToLower(ix.sorted[i].Name), strings.ToLower(ix.sorted[j].Name)
		if a == b {
			return ix.sorted[i].Name < ix.sorted[j].Name
		}
		return a < b
	})
	return ix
}

// Lookup finds an emote by exact, case-sensitive name.
func (ix *Index) Lookup(name string) (models.CachedEmote, bool) {
	if ix == nil {
		return models.CachedEmote{}, false
	}
	e, ok := ix.byName[name]
	return e, ok
}

// ByID finds an emote by id.
func (ix *Index) ByID(id string) (models.CachedEmote, bool) {
	if ix == nil {
		return models.CachedEmote{}, false
	}
	e, ok := ix.byID[id]
	return e, ok
}

// Len returns the number of emotes in the snapshot.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.sorted)
}

// List returns the emotes sorted by name.
func (ix *Index) List() []models.CachedEmote {
	if ix == nil {
		return []models.CachedEmote{}
	}
	out := make([]models.CachedEmote, len(ix.sorted))
	copy(out, ix.sorted)
	return out
}

// Options tune a Catalog.
type Options struct {
	RefreshInterval time.Duration
	PageSize        int
	Now             func() time.Time
}

// Catalog is a read-through cache over the remote emote catalog.
type Catalog struct {
	source   Source
	opts     Options
	onChange func()

	index atomic.Pointer[Index]

	mu        sync.Mutex
	global    []models.CachedEmote
	extras    []models.CachedEmote
	status    models.CatalogStatus
	lastErr   error
	fetchedAt time.Time
	inFlight  bool
}

// NewCatalog builds an empty catalog. onChange may be nil.
func NewCatalog(source Source, opts Options, onChange func()) *Catalog {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if onChange == nil {
		onChange = func() {}
	}
	c := &Catalog{source: source, opts: opts, onChange: onChange, status: models.CatalogIdle}
	c.index.Store(newIndex())
	return c
}

// Snapshot returns the last successfully built index.
func (c *Catalog) Snapshot() *Index {
	return c.index.Load()
}

// Status returns the fetch status and the last fetch error, if any.
func (c *Catalog) Status() (models.CatalogStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.lastErr
}

// Initialize fetches the global set when it was never fetched or is older
// than the refresh interval. A call while a fetch is in flight is a no-op.
// Failures keep the previous snapshot.
func (c *Catalog) Initialize(ctx context.Context) error {
	return c.fetch(ctx, false)
}

// Refresh fetches the global set regardless of its age.
func (c *Catalog) Refresh(ctx context.Context) error {
	return c.fetch(ctx, true)
}

func (c *Catalog) fetch(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		observability.IncCatalogFetch("in_flight")
		return nil
	}
	if !force && !c.fetchedAt.IsZero() && c.opts.Now().Sub(c.fetchedAt) < c.opts.RefreshInterval {
		c.mu.Unlock()
		observability.IncCatalogFetch("fresh")
		return nil
	}
	c.inFlight = true
	c.status = models.CatalogLoading
	c.mu.Unlock()
	c.onChange()

	set, err := c.source.FetchGlobalEmoteSet(ctx)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.status = models.CatalogError
		c.lastErr = errs.Transport("fetch global emote set", err)
		c.mu.Unlock()
		log.Printf("emote catalog fetch failed, keeping stale snapshot size=%d err=%v", c.Snapshot().Len(), err)
		observability.IncCatalogFetch("error")
		c.onChange()
		return c.lastErr
	}
	c.global = set
	c.fetchedAt = c.opts.Now()
	c.status = models.CatalogReady
	c.lastErr = nil
	c.index.Store(newIndex(c.global, c.extras))
	c.mu.Unlock()
	observability.IncCatalogFetch("ok")
	c.onChange()
	return nil
}

// AddEmote merges a single emote into the working set. It reports whether
// the emote was new.
func (c *Catalog) AddEmote(emote models.CachedEmote) bool {
	if emote.Name == "" {
		return false
	}
	c.mu.Lock()
	if _, ok := c.index.Load().Lookup(emote.Name); ok {
		c.mu.Unlock()
		return false
	}
	c.extras = append(c.extras, emote)
	c.index.Store(newIndex(c.global, c.extras))
	c.mu.Unlock()
	c.onChange()
	return true
}

// SearchOnline queries the remote catalog. Short queries and transport
// failures yield an empty result.
func (c *Catalog) SearchOnline(ctx context.Context, query string, page int) []models.CachedEmote {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		observability.IncEmoteSearch("short")
		return []models.CachedEmote{}
	}
	if page < 1 {
		page = 1
	}
	results, err := c.source.SearchEmotes(ctx, query, page, c.opts.PageSize)
	if err != nil {
		log.Printf("emote search failed query=%q page=%d err=%v", query, page, err)
		observability.IncEmoteSearch("error")
		return []models.CachedEmote{}
	}
	if results == nil {
		results = []models.CachedEmote{}
	}
	if len(results) > c.opts.PageSize {
		results = results[:c.opts.PageSize]
	}
	observability.IncEmoteSearch("ok")
	return results
}
