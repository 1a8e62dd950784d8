package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Fixed nomenclature columns of the source report. The leading columns of
// every data row describe the item itself; district quantities and costs
// follow at the positions named by the layout.
const (
	colIndex     = 0 // line number within a category ("1", "2", ...)
	colName      = 1 // item name, or the category label on declaration rows
	colUnit      = 2 // unit of measure
	colUnitPrice = 4 // price per unit
)

var (
	ErrEmptyGrid          = errors.New("grid has no rows")
	ErrHeaderOverrun      = errors.New("header skip count exceeds grid row count")
	ErrItemBeforeCategory = errors.New("item row encountered before any category declaration")
)

// rowKind is the classification of a single grid row.
type rowKind int

const (
	rowBlank rowKind = iota
	rowCategory
	rowItem
)

// classify decides what a data row is, from its first two columns alone.
// A row with an empty index but a label declares a category; a row with
// both is an item; everything else carries no information.
func classify(row []string) rowKind {
	idx := cell(row, colIndex)
	name := cell(row, colName)
	switch {
	case idx == "" && name != "":
		return rowCategory
	case idx != "" && name != "":
		return rowItem
	default:
		return rowBlank
	}
}

// scanState is the parser's explicit state between rows: either no category
// has been declared yet, or all subsequent items belong to categoryID.
type scanState struct {
	categoryID   int64
	categoryName string
	haveCategory bool
}

// Parser recovers the implicit structure of an uploaded reserve report:
// category rows govern the item rows that follow them, and column position
// encodes the receiving district.
type Parser struct {
	layout Layout
}

func NewParser(layout Layout) *Parser {
	return &Parser{layout: layout}
}

// Run scans the grid once and writes normalized records through w. It
// returns the number of distribution facts created. On a structural error
// it aborts immediately; the caller is expected to run it inside a
// transaction so nothing partial survives.
func (p *Parser) Run(ctx context.Context, grid [][]string, year int, w CatalogWriter) (int, error) {
	if len(grid) == 0 {
		return 0, ErrEmptyGrid
	}
	if p.layout.HeaderRows > len(grid) {
		return 0, fmt.Errorf("%w: skip %d, rows %d", ErrHeaderOverrun, p.layout.HeaderRows, len(grid))
	}

	var state scanState
	facts := 0
	for n, row := range grid[p.layout.HeaderRows:] {
		var err error
		state, facts, err = p.scanRow(ctx, state, row, year, w, facts)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", p.layout.HeaderRows+n, err)
		}
	}

	slog.InfoContext(ctx, "Report parsed",
		"rows", len(grid)-p.layout.HeaderRows,
		"facts", facts,
		"year", year)

	return facts, nil
}

// scanRow applies one row to the state machine and returns the next state.
func (p *Parser) scanRow(ctx context.Context, state scanState, row []string, year int, w CatalogWriter, facts int) (scanState, int, error) {
	switch classify(row) {
	case rowBlank:
		return state, facts, nil

	case rowCategory:
		name := cell(row, colName)
		id, err := w.EnsureCategory(ctx, name)
		if err != nil {
			return state, facts, fmt.Errorf("ensure category %q: %w", name, err)
		}
		return scanState{categoryID: id, categoryName: name, haveCategory: true}, facts, nil

	case rowItem:
		if !state.haveCategory {
			return state, facts, ErrItemBeforeCategory
		}
		name := cell(row, colName)
		unitPrice, _ := parseNumber(cell(row, colUnitPrice)) // unparsable price reads as zero
		itemID, err := w.CreateItem(ctx, state.categoryID, name, cell(row, colUnit), unitPrice)
		if err != nil {
			return state, facts, fmt.Errorf("create item %q: %w", name, err)
		}

		for _, b := range p.layout.Columns {
			qty, ok := parseNumber(cell(row, b.QuantityCol))
			if !ok || qty <= 0 {
				// No parseable positive quantity means this district
				// received nothing on this line.
				continue
			}
			cost, _ := parseNumber(cell(row, b.CostCol))
			if err := w.CreateDistribution(ctx, b.DistrictID, itemID, year, qty, cost); err != nil {
				return state, facts, fmt.Errorf("distribution %s/%q: %w", b.DistrictID, name, err)
			}
			facts++
		}
		return state, facts, nil
	}
	return state, facts, nil
}

// cell returns the trimmed value at column i, or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseNumber coerces a report cell to a number. Human-authored sheets mix
// comma decimal separators and digit-group spaces, so those are normalized
// first. Returns false when the cell holds no number at all.
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
