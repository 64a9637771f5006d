// Package memory holds populations in memory for tests and for
// brute-force comparison against planner output.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/population"
	"github.com/funnelworks/cadence/pkg/quickfilter"
)

// Store is the in-memory population reader.
type Store struct {
	mu          sync.RWMutex
	populations map[models.DataType][]population.Item
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{populations: make(map[models.DataType][]population.Item)}
}

// Add appends items to a population.
func (s *Store) Add(dataType models.DataType, items ...population.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.populations[dataType] = append(s.populations[dataType], items...)
}

// QueryChunk filters the population with the query's own predicate,
// mirroring the SQL rendering's boolean structure.
func (s *Store) QueryChunk(_ context.Context, query quickfilter.Query, cursor int64, limit int) (*population.Page, error) {
	s.mu.RLock()
	items, ok := s.populations[query.DataType]
	s.mu.RUnlock()

	if !ok && query.Backend.Table == "" {
		return nil, quickfilter.ErrUnsupportedDataType
	}

	sorted := make([]population.Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	page := &population.Page{NextCursor: cursor}
	scanned := 0

	for _, item := range sorted {
		if item.ID() <= cursor {
			continue
		}

		scanned++
		page.NextCursor = item.ID()

		if query.Matches(item) {
			page.Items = append(page.Items, item)
		}

		if limit > 0 && scanned >= limit {
			return page, nil
		}
	}

	page.Done = true

	return page, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error { return nil }

// Close has nothing to release.
func (s *Store) Close(_ context.Context) error { return nil }
