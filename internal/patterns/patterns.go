// Package patterns serves the database-resident regular expressions used
// by the message parser. Patterns are loaded lazily, grouped by category
// and ordered by priority; reloads swap a copy-on-write snapshot so
// readers never see a partially loaded set.
package patterns

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

// Pattern categories used by the parser (closed set)
const (
	CategoryTicker         = "ticker"
	CategoryTradingKeyword = "trading_keyword"
	CategoryAuthor         = "author"
	CategoryOperationExit  = "operation_exit"
	CategoryDirectionLong  = "direction_long"
	CategoryDirectionShort = "direction_short"
	CategoryPriceTarget    = "price_target"
	CategoryPriceStop      = "price_stop"
	CategoryPriceTake      = "price_take"
)

type store interface {
	GetAllActivePatterns(ctx context.Context) (map[string][]*db.ParsingPattern, error)
}

// Store caches active parsing patterns and their compiled forms
type Store struct {
	db  store
	log zerolog.Logger

	mu       sync.RWMutex
	byCat    map[string][]*db.ParsingPattern
	compiled map[int64]*regexp.Regexp
	loaded   bool
}

// NewStore creates an unloaded pattern store. The first Get call loads
// from the database.
func NewStore(database store) *Store {
	return &Store{
		db:       database,
		log:      config.NewLogger("patterns"),
		byCat:    make(map[string][]*db.ParsingPattern),
		compiled: make(map[int64]*regexp.Regexp),
	}
}

// Get returns the active patterns for a category, highest priority first.
// The returned slice must not be modified.
func (s *Store) Get(ctx context.Context, category string) ([]*db.ParsingPattern, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byCat[category], nil
}

// Compiled returns the compiled regexp for a pattern, compiling and
// caching on first use. Patterns that fail to compile are skipped by
// returning nil with no error; the failure is logged once per load.
func (s *Store) Compiled(p *db.ParsingPattern) *regexp.Regexp {
	s.mu.RLock()
	re, ok := s.compiled[p.ID]
	s.mu.RUnlock()
	if ok {
		return re
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if re, ok := s.compiled[p.ID]; ok {
		return re
	}

	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		s.log.Warn().
			Int64("pattern_id", p.ID).
			Str("name", p.Name).
			Err(err).
			Msg("Skipping pattern that does not compile")
		re = nil
	}
	s.compiled[p.ID] = re
	return re
}

// Reload fetches the active pattern set and swaps it in atomically.
// The compile cache is dropped with the old snapshot.
func (s *Store) Reload(ctx context.Context) error {
	byCat, err := s.db.GetAllActivePatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load parsing patterns: %w", err)
	}

	total := 0
	for _, list := range byCat {
		total += len(list)
	}

	s.mu.Lock()
	s.byCat = byCat
	s.compiled = make(map[int64]*regexp.Regexp, total)
	s.loaded = true
	s.mu.Unlock()

	s.log.Info().
		Int("categories", len(byCat)).
		Int("patterns", total).
		Msg("Parsing patterns loaded")

	return nil
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Reload(ctx)
}

// Stats describes the current snapshot
type Stats struct {
	Loaded     bool           `json:"loaded"`
	Categories int            `json:"categories"`
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	Compiled   int            `json:"compiled"`
}

// CacheStats returns counts for the current snapshot
func (s *Store) CacheStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Loaded:     s.loaded,
		Categories: len(s.byCat),
		ByCategory: make(map[string]int, len(s.byCat)),
		Compiled:   len(s.compiled),
	}
	for cat, list := range s.byCat {
		stats.ByCategory[cat] = len(list)
		stats.Total += len(list)
	}
	return stats
}
