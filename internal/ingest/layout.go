package ingest

import (
	"encoding/json"
	"fmt"
	"os"
)

// ColumnBinding maps a pair of grid columns to the district whose issued
// quantity and cost they carry. The report encodes recipient identity purely
// by column position, so this is external configuration, never inferred.
type ColumnBinding struct {
	QuantityCol int    `json:"quantity_col"`
	CostCol     int    `json:"cost_col"`
	DistrictID  string `json:"district_id"`
}

// Layout describes the fixed shape of an uploaded report sheet.
type Layout struct {
	// HeaderRows is the number of leading title/header rows that are never
	// interpreted as data.
	HeaderRows int `json:"header_rows"`

	Columns []ColumnBinding `json:"columns"`
}

// LoadLayout reads a layout definition from a JSON file.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout file: %w", err)
	}

	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("parse layout file %s: %w", path, err)
	}

	if err := l.Validate(); err != nil {
		return Layout{}, fmt.Errorf("layout file %s: %w", path, err)
	}
	return l, nil
}

// Validate checks the layout for internal consistency.
func (l Layout) Validate() error {
	if l.HeaderRows < 0 {
		return fmt.Errorf("header_rows must not be negative, got %d", l.HeaderRows)
	}
	if len(l.Columns) == 0 {
		return fmt.Errorf("at least one column binding is required")
	}

	seen := make(map[int]string, len(l.Columns)*2)
	for i, b := range l.Columns {
		if b.DistrictID == "" {
			return fmt.Errorf("column binding %d: district_id is empty", i)
		}
		// Columns 0-4 carry the nomenclature line itself
		if b.QuantityCol <= colUnitPrice || b.CostCol <= colUnitPrice {
			return fmt.Errorf("column binding %d (%s): quantity/cost columns must come after the nomenclature columns", i, b.DistrictID)
		}
		if b.QuantityCol == b.CostCol {
			return fmt.Errorf("column binding %d (%s): quantity and cost columns collide", i, b.DistrictID)
		}
		for _, col := range []int{b.QuantityCol, b.CostCol} {
			if owner, dup := seen[col]; dup {
				return fmt.Errorf("column %d bound to both %s and %s", col, owner, b.DistrictID)
			}
			seen[col] = b.DistrictID
		}
	}
	return nil
}
