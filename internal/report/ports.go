package report

import (
	"context"

	"reservemap/internal/core"
)

// Selector restricts a query to one district, or to all when zero.
type Selector struct {
	DistrictID string
}

// All reports whether the selector matches every district.
func (s Selector) All() bool { return s.DistrictID == "" }

// YearRange is an optional inclusive filter on issue years. A nil bound
// means that side is open.
type YearRange struct {
	Start *int
	End   *int
}

// DateRange is the indicator-side filter, inclusive ISO dates. Empty
// strings mean open bounds.
type DateRange struct {
	Start string
	End   string
}

// FactReader is the flat-row query contract the engine aggregates over.
// Rows arrive ordered by category name, then item/indicator name, then
// insertion order; the engine never re-sorts them.
type FactReader interface {
	QueryFacts(ctx context.Context, sel Selector, years YearRange) ([]core.FactRow, error)
	QueryIndicators(ctx context.Context, sel Selector, dates DateRange) ([]core.IndicatorRow, error)

	// HasFacts answers whether QueryFacts would return any row.
	HasFacts(ctx context.Context, sel Selector, years YearRange) (bool, error)

	// LatestFactYear returns the most recent issue year with any row for
	// the selector, ignoring range filters; nil when there is none.
	LatestFactYear(ctx context.Context, sel Selector) (*int, error)
}
