package ingest

import "context"

// CatalogWriter is the storage contract the parser writes through. The
// SQLite repository satisfies it inside a transaction so an aborted run
// leaves nothing behind.
type CatalogWriter interface {
	// EnsureCategory resolves a category label to its id, creating the
	// category on first sight. Idempotent by name.
	EnsureCategory(ctx context.Context, name string) (int64, error)

	// CreateItem inserts one nomenclature line under an existing category.
	CreateItem(ctx context.Context, categoryID int64, name, unit string, unitPrice float64) (int64, error)

	// CreateDistribution records that a district received an item.
	CreateDistribution(ctx context.Context, districtID string, itemID int64, year int, quantity, totalCost float64) error
}
