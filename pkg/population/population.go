// Package population abstracts read-only access to the populations a
// batched workflow is evaluated against (orders, subscriptions,
// customers). Queries are chunked with keyset pagination so a sweep
// iteration has predictable cost.
package population

import (
	"context"

	"github.com/funnelworks/cadence/pkg/quickfilter"
)

// Item is one row of a population, keyed by column name. Related
// entities may be nested under their data type name.
type Item map[string]any

// ID returns the item's numeric id, 0 when absent.
func (i Item) ID() int64 {
	switch v := i["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Page is one chunk of a population scan.
type Page struct {
	Items []Item

	// NextCursor resumes the scan; pass it to the next QueryChunk.
	NextCursor int64

	// Done is set when the scan has reached the end.
	Done bool
}

// Store reads populations. Implementations never mutate queue state.
type Store interface {
	// QueryChunk returns up to limit items admitted by the narrowing
	// query with id > cursor, ordered by id ascending.
	QueryChunk(ctx context.Context, query quickfilter.Query, cursor int64, limit int) (*Page, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
