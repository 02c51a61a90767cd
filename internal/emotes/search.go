package emotes

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

const DefaultDebounce = 400 * time.Millisecond

// SearchState is the searcher's view for UI snapshots.
type SearchState struct {
	Query   string               `json:"query"`
	Page    int                  `json:"page"`
	Pending bool                 `json:"pending"`
	Results []models.CachedEmote `json:"results"`
}

// Searcher debounces keystroke-driven searches. Only the response for the
// current query is applied; responses for superseded queries are dropped.
type Searcher struct {
	catalog  *Catalog
	delay    time.Duration
	onChange func()

	mu      sync.Mutex
	ctx     context.Context
	timer   *time.Timer
	seq     uint64
	query   string
	page    int
	pending bool
	results []models.CachedEmote
}

// NewSearcher builds a searcher bound to ctx; cancelling ctx stops future
// searches.
func NewSearcher(ctx context.Context, catalog *Catalog, delay time.Duration, onChange func()) *Searcher {
	if delay < 0 {
		delay = DefaultDebounce
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Searcher{
		catalog:  catalog,
		delay:    delay,
		onChange: onChange,
		ctx:      ctx,
		results:  []models.CachedEmote{},
	}
}

// Query records a keystroke. The remote search runs once input pauses for
// the debounce delay. Surrounding whitespace is ignored.
func (s *Searcher) Query(query string, page int) {
	query = strings.TrimSpace(query)
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.query = query
	s.page = page
	if len([]rune(query)) < MinSearchLength {
		s.pending = false
		s.results = []models.CachedEmote{}
		s.timer = nil
		s.mu.Unlock()
		s.onChange()
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.delay, func() { s.run(seq, query, page) })
	s.mu.Unlock()
	s.onChange()
}

func (s *Searcher) run(seq uint64, query string, page int) {
	if s.ctx.Err() != nil {
		return
	}
	results := s.catalog.SearchOnline(s.ctx, query, page)

	s.mu.Lock()
	if seq != s.seq || query != s.query {
		current := s.query
		s.mu.Unlock()
		log.Printf("emote search response discarded query=%q current=%q", query, current)
		observability.IncStaleResponse("emote_search")
		return
	}
	s.pending = false
	s.results = results
	s.mu.Unlock()
	s.onChange()
}

// Cancel stops any pending debounce and invalidates in-flight responses.
func (s *Searcher) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
	s.pending = false
}

// State returns a copy of the current search state.
func (s *Searcher) State() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CachedEmote, len(s.results))
	copy(out, s.results)
	return SearchState{Query: s.query, Page: s.page, Pending: s.pending, Results: out}
}
