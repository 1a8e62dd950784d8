package report

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"reservemap/internal/core"
)

type (
	// InventoryEntry is one issued line inside a category/item bucket.
	InventoryEntry struct {
		Year     int     `json:"year"`
		Quantity float64 `json:"quantity"`
		Unit     string  `json:"unit"`
		Cost     float64 `json:"cost"`
	}

	// Statistics summarizes the whole filtered fact set, not one group.
	Statistics struct {
		TotalCost    float64 `json:"total_cost"`
		TotalRows    int     `json:"total_rows"`
		EarliestYear *int    `json:"earliest_year"`
		LatestYear   *int    `json:"latest_year"`
	}

	// InventoryView is the nested shape the info panel renders: category →
	// item → issued lines, plus overall statistics.
	InventoryView struct {
		Inventory  map[string]map[string][]InventoryEntry `json:"inventory"`
		Statistics Statistics                             `json:"statistics"`
	}

	IndicatorEntry struct {
		Date   string  `json:"date"`
		Value  float64 `json:"value"`
		Unit   string  `json:"unit"`
		Source string  `json:"source"`
	}

	// IndicatorSummary backs the trend display for a single indicator.
	IndicatorSummary struct {
		Latest float64 `json:"latest"`
		Mean   float64 `json:"mean"`
		Min    float64 `json:"min"`
		Max    float64 `json:"max"`
	}

	IndicatorStatistics struct {
		TotalValue   float64 `json:"total_value"`
		TotalRows    int     `json:"total_rows"`
		EarliestDate *string `json:"earliest_date"`
		LatestDate   *string `json:"latest_date"`
	}

	// IndicatorView groups indicator rows by type → name and adds
	// per-indicator summaries.
	IndicatorView struct {
		Indicators map[string]map[string][]IndicatorEntry `json:"indicators"`
		Summaries  map[string]IndicatorSummary            `json:"summaries"`
		Statistics IndicatorStatistics                    `json:"statistics"`
	}

	// Availability is the result of the existence check: whether the
	// requested period has data, and if not, the most recent year that does.
	Availability struct {
		HasData      bool `json:"has_data"`
		FallbackYear *int `json:"fallback_year,omitempty"`
	}
)

// Engine reassembles flat normalized rows into the nested, statistic-
// annotated views the map frontend and exports consume. It performs no
// writes and holds no state between calls.
type Engine struct {
	store FactReader
}

func NewEngine(store FactReader) *Engine {
	return &Engine{store: store}
}

// Inventory builds the category→item view for a district (or all) over an
// optional year range. An empty result set is a normal answer, never an
// error.
func (e *Engine) Inventory(ctx context.Context, sel Selector, years YearRange) (InventoryView, error) {
	rows, err := e.store.QueryFacts(ctx, sel, years)
	if err != nil {
		return InventoryView{}, fmt.Errorf("query facts: %w", err)
	}
	return BuildInventoryView(rows), nil
}

// Indicators builds the type→name indicator view with per-indicator
// summaries.
func (e *Engine) Indicators(ctx context.Context, sel Selector, dates DateRange) (IndicatorView, error) {
	rows, err := e.store.QueryIndicators(ctx, sel, dates)
	if err != nil {
		return IndicatorView{}, fmt.Errorf("query indicators: %w", err)
	}
	return BuildIndicatorView(rows), nil
}

// Availability answers whether the period holds any data, and when it does
// not, which year the caller could fall back to. The two queries are
// independent and run concurrently.
func (e *Engine) Availability(ctx context.Context, sel Selector, years YearRange) (Availability, error) {
	var (
		hasData bool
		latest  *int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hasData, err = e.store.HasFacts(gctx, sel, years)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = e.store.LatestFactYear(gctx, sel)
		return err
	})
	if err := g.Wait(); err != nil {
		return Availability{}, fmt.Errorf("availability check: %w", err)
	}

	if hasData {
		return Availability{HasData: true}, nil
	}
	return Availability{FallbackYear: latest}, nil
}

// BuildInventoryView folds ordered fact rows into the nested view. Each row
// lands in exactly one (category, item) bucket; statistics run over the
// entire set.
func BuildInventoryView(rows []core.FactRow) InventoryView {
	view := InventoryView{Inventory: make(map[string]map[string][]InventoryEntry)}

	for _, r := range rows {
		byItem, ok := view.Inventory[r.Category]
		if !ok {
			byItem = make(map[string][]InventoryEntry)
			view.Inventory[r.Category] = byItem
		}
		byItem[r.Item] = append(byItem[r.Item], InventoryEntry{
			Year:     r.Year,
			Quantity: r.Quantity,
			Unit:     r.Unit,
			Cost:     r.Cost,
		})

		view.Statistics.TotalCost += r.Cost
		view.Statistics.TotalRows++
		if view.Statistics.EarliestYear == nil || r.Year < *view.Statistics.EarliestYear {
			y := r.Year
			view.Statistics.EarliestYear = &y
		}
		if view.Statistics.LatestYear == nil || r.Year > *view.Statistics.LatestYear {
			y := r.Year
			view.Statistics.LatestYear = &y
		}
	}

	return view
}

// BuildIndicatorView folds ordered indicator rows into the type→name view.
// Summaries exist only for indicators that have rows, so the mean never
// divides by zero.
func BuildIndicatorView(rows []core.IndicatorRow) IndicatorView {
	view := IndicatorView{
		Indicators: make(map[string]map[string][]IndicatorEntry),
		Summaries:  make(map[string]IndicatorSummary),
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, r := range rows {
		byName, ok := view.Indicators[r.Type]
		if !ok {
			byName = make(map[string][]IndicatorEntry)
			view.Indicators[r.Type] = byName
		}
		byName[r.Name] = append(byName[r.Name], IndicatorEntry{
			Date:   r.Date,
			Value:  r.Value,
			Unit:   r.Unit,
			Source: r.Source,
		})

		s, seen := view.Summaries[r.Name]
		if !seen {
			s = IndicatorSummary{Min: r.Value, Max: r.Value}
		}
		// Rows arrive in chronological insertion order, so the last one
		// observed is the latest value.
		s.Latest = r.Value
		if r.Value < s.Min {
			s.Min = r.Value
		}
		if r.Value > s.Max {
			s.Max = r.Value
		}
		view.Summaries[r.Name] = s
		sums[r.Name] += r.Value
		counts[r.Name]++

		view.Statistics.TotalValue += r.Value
		view.Statistics.TotalRows++
		if view.Statistics.EarliestDate == nil || r.Date < *view.Statistics.EarliestDate {
			d := r.Date
			view.Statistics.EarliestDate = &d
		}
		if view.Statistics.LatestDate == nil || r.Date > *view.Statistics.LatestDate {
			d := r.Date
			view.Statistics.LatestDate = &d
		}
	}

	for name, s := range view.Summaries {
		s.Mean = sums[name] / float64(counts[name])
		view.Summaries[name] = s
	}

	return view
}
