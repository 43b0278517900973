// Package cache is the read-side cache between query handlers and the
// scripting host. Entries are grouped into categories with different
// lifetimes: task state changes constantly, structure changes rarely, and
// analytics can stay warm for a long time. Writes through the server
// invalidate the touched categories synchronously, so a read issued after
// a write acknowledgment never sees the pre-write value from here.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category groups entries that go stale together.
type Category string

const (
	CategoryTasks     Category = "tasks"
	CategoryProjects  Category = "projects"
	CategoryTags      Category = "tags"
	CategoryFolders   Category = "folders"
	CategoryAnalytics Category = "analytics"
)

// Default lifetimes per category.
const (
	DefaultTaskTTL       = 30 * time.Second
	DefaultStructuralTTL = 5 * time.Minute
	DefaultAnalyticsTTL  = time.Hour
	DefaultCleanupEvery  = time.Minute
)

// State is what a lookup found.
type State string

const (
	StateValid       State = "valid"
	StateAbsent      State = "absent"
	StateExpired     State = "expired"
	StateInvalidated State = "invalidated"
)

// Options configure a Store. Zero values take the defaults.
type Options struct {
	TaskTTL       time.Duration
	StructuralTTL time.Duration
	AnalyticsTTL  time.Duration
	// CleanupEvery is the janitor interval. Negative disables the
	// janitor; expired entries are then reaped lazily on lookup.
	CleanupEvery time.Duration
	Logger       *zap.Logger
	// Clock is the time source, replaceable in tests.
	Clock func() time.Time
}

// Stats is a point-in-time view of cache behavior.
type Stats struct {
	Hits        int64            `json:"hits"`
	Misses      int64            `json:"misses"`
	Expired     int64            `json:"expired"`
	Invalidated int64            `json:"invalidated"`
	Sets        int64            `json:"sets"`
	Entries     int              `json:"entries"`
	ByCategory  map[Category]int `json:"by_category"`
}

type entry struct {
	value       interface{}
	category    Category
	expiresAt   time.Time
	invalidated bool
}

// Store is a category-aware TTL cache. All methods are safe for
// concurrent use; concurrent writers to one key resolve last-writer-wins.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttls    map[Category]time.Duration
	now     func() time.Time
	logger  *zap.Logger
	done    chan struct{}
	closed  sync.Once

	hits        int64
	misses      int64
	expired     int64
	invalidated int64
	sets        int64
}

// New returns a running Store. Call Close to stop its janitor.
func New(opts Options) *Store {
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = DefaultTaskTTL
	}
	if opts.StructuralTTL <= 0 {
		opts.StructuralTTL = DefaultStructuralTTL
	}
	if opts.AnalyticsTTL <= 0 {
		opts.AnalyticsTTL = DefaultAnalyticsTTL
	}
	if opts.CleanupEvery == 0 {
		opts.CleanupEvery = DefaultCleanupEvery
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Store{
		entries: make(map[string]*entry),
		ttls: map[Category]time.Duration{
			CategoryTasks:     opts.TaskTTL,
			CategoryProjects:  opts.StructuralTTL,
			CategoryTags:      opts.StructuralTTL,
			CategoryFolders:   opts.StructuralTTL,
			CategoryAnalytics: opts.AnalyticsTTL,
		},
		now:    opts.Clock,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}
	if opts.CleanupEvery > 0 {
		go s.cleanupLoop(opts.CleanupEvery)
	}
	return s
}

// Get looks a key up and reports what it found. Dead entries are reaped on
// the way out, so a non-valid state means the next Set starts fresh.
func (s *Store) Get(key string) (interface{}, State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, StateAbsent
	}
	if e.invalidated {
		delete(s.entries, key)
		s.invalidated++
		return nil, StateInvalidated
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		s.expired++
		return nil, StateExpired
	}
	s.hits++
	return e.value, StateValid
}

// Set stores a value under its category's lifetime.
func (s *Store) Set(cat Category, key string, value interface{}) {
	ttl, ok := s.ttls[cat]
	if !ok {
		ttl = DefaultTaskTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.entries[key] = &entry{
		value:     value,
		category:  cat,
		expiresAt: s.now().Add(ttl),
	}
}

// InvalidateCategory marks every entry in the category dead and returns
// how many it touched. The marks land before this returns, so callers can
// acknowledge a write only after its categories are invalidated.
func (s *Store) InvalidateCategory(cats ...Category) int {
	want := make(map[Category]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if want[e.category] && !e.invalidated {
			e.invalidated = true
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("cache categories invalidated",
			zap.Int("entries", n),
			zap.Int("categories", len(cats)))
	}
	return n
}

// InvalidateKey marks one entry dead.
func (s *Store) InvalidateKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.invalidated {
		return false
	}
	e.invalidated = true
	return true
}

// InvalidateAll drops everything.
func (s *Store) InvalidateAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]*entry)
	return n
}

// Len reports live entry count, including marked-dead entries not yet
// reaped.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats snapshots the counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	by := make(map[Category]int)
	for _, e := range s.entries {
		by[e.category]++
	}
	return Stats{
		Hits:        s.hits,
		Misses:      s.misses,
		Expired:     s.expired,
		Invalidated: s.invalidated,
		Sets:        s.sets,
		Entries:     len(s.entries),
		ByCategory:  by,
	}
}

// Close stops the janitor. The store stays usable afterwards; entries
// just stop being reaped in the background.
func (s *Store) Close() {
	s.closed.Do(func() { close(s.done) })
}

func (s *Store) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *Store) reap() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if e.invalidated || now.After(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("cache janitor reaped entries", zap.Int("removed", removed))
	}
}
