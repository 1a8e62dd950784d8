package report

import (
	"context"
	"errors"
	"math"
	"testing"

	"reservemap/internal/core"
)

// fakeReader serves canned rows and records the filters it was asked for.
type fakeReader struct {
	facts      []core.FactRow
	indicators []core.IndicatorRow
	hasFacts   bool
	latestYear *int
	err        error
}

func (f *fakeReader) QueryFacts(_ context.Context, sel Selector, years YearRange) ([]core.FactRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.FactRow
	for _, r := range f.facts {
		if !sel.All() && r.DistrictID != sel.DistrictID {
			continue
		}
		if years.Start != nil && r.Year < *years.Start {
			continue
		}
		if years.End != nil && r.Year > *years.End {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeReader) QueryIndicators(_ context.Context, _ Selector, _ DateRange) ([]core.IndicatorRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.indicators, nil
}

func (f *fakeReader) HasFacts(_ context.Context, _ Selector, _ YearRange) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.hasFacts, nil
}

func (f *fakeReader) LatestFactYear(_ context.Context, _ Selector) (*int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.latestYear, nil
}

func sampleFacts() []core.FactRow {
	return []core.FactRow{
		{DistrictID: "aldansky", Category: "Медицина", Item: "Бинт", Unit: "шт", Year: 2023, Quantity: 50, Cost: 600},
		{DistrictID: "aldansky", Category: "Продовольствие", Item: "Мука", Unit: "кг", Year: 2023, Quantity: 100, Cost: 4500},
		{DistrictID: "aldansky", Category: "Продовольствие", Item: "Мука", Unit: "кг", Year: 2024, Quantity: 80, Cost: 4000},
		{DistrictID: "aldansky", Category: "Продовольствие", Item: "Сахар", Unit: "кг", Year: 2024, Quantity: 20, Cost: 1200},
	}
}

func TestBuildInventoryView(t *testing.T) {
	view := BuildInventoryView(sampleFacts())

	if len(view.Inventory) != 2 {
		t.Fatalf("categories = %d, want 2", len(view.Inventory))
	}

	flour := view.Inventory["Продовольствие"]["Мука"]
	if len(flour) != 2 {
		t.Fatalf("flour entries = %d, want 2", len(flour))
	}
	if flour[0].Year != 2023 || flour[0].Quantity != 100 || flour[0].Cost != 4500 || flour[0].Unit != "кг" {
		t.Errorf("first flour entry = %+v", flour[0])
	}
	if flour[1].Year != 2024 {
		t.Errorf("second flour entry year = %d, want 2024", flour[1].Year)
	}

	if got, want := view.Statistics.TotalCost, 600.0+4500+4000+1200; got != want {
		t.Errorf("total cost = %v, want %v", got, want)
	}
	if view.Statistics.TotalRows != 4 {
		t.Errorf("total rows = %d, want 4", view.Statistics.TotalRows)
	}
	if view.Statistics.EarliestYear == nil || *view.Statistics.EarliestYear != 2023 {
		t.Errorf("earliest year = %v, want 2023", view.Statistics.EarliestYear)
	}
	if view.Statistics.LatestYear == nil || *view.Statistics.LatestYear != 2024 {
		t.Errorf("latest year = %v, want 2024", view.Statistics.LatestYear)
	}
}

// Every fact lands in exactly one bucket: re-summing the nested view must
// reproduce the flat totals.
func TestBuildInventoryViewCompleteness(t *testing.T) {
	facts := sampleFacts()
	view := BuildInventoryView(facts)

	var wantCost float64
	for _, f := range facts {
		wantCost += f.Cost
	}

	var gotCost float64
	var gotRows int
	for _, byItem := range view.Inventory {
		for _, entries := range byItem {
			for _, e := range entries {
				gotCost += e.Cost
				gotRows++
			}
		}
	}

	if gotCost != wantCost {
		t.Errorf("flattened cost = %v, want %v", gotCost, wantCost)
	}
	if gotRows != len(facts) {
		t.Errorf("flattened rows = %d, want %d", gotRows, len(facts))
	}
}

func TestBuildInventoryViewEmpty(t *testing.T) {
	view := BuildInventoryView(nil)

	if len(view.Inventory) != 0 {
		t.Errorf("inventory = %v, want empty", view.Inventory)
	}
	if view.Inventory == nil {
		t.Error("inventory map must be non-nil so it encodes as {}")
	}
	if view.Statistics.TotalCost != 0 || view.Statistics.TotalRows != 0 {
		t.Errorf("statistics = %+v, want zeros", view.Statistics)
	}
	if view.Statistics.EarliestYear != nil || view.Statistics.LatestYear != nil {
		t.Errorf("year bounds = %v/%v, want nil/nil", view.Statistics.EarliestYear, view.Statistics.LatestYear)
	}
}

func TestBuildIndicatorView(t *testing.T) {
	rows := []core.IndicatorRow{
		{DistrictID: "aldansky", Type: "демография", Name: "население", Date: "2022-01-01", Value: 40000, Unit: "чел"},
		{DistrictID: "aldansky", Type: "демография", Name: "население", Date: "2023-01-01", Value: 39000, Unit: "чел"},
		{DistrictID: "aldansky", Type: "демография", Name: "население", Date: "2024-01-01", Value: 41000, Unit: "чел"},
		{DistrictID: "aldansky", Type: "чс", Name: "пожары", Date: "2024-06-15", Value: 12, Unit: "шт", Source: "ГПС"},
	}

	view := BuildIndicatorView(rows)

	if len(view.Indicators) != 2 {
		t.Fatalf("types = %d, want 2", len(view.Indicators))
	}
	if got := len(view.Indicators["демография"]["население"]); got != 3 {
		t.Fatalf("population entries = %d, want 3", got)
	}

	pop := view.Summaries["население"]
	if pop.Latest != 41000 {
		t.Errorf("latest = %v, want 41000", pop.Latest)
	}
	if pop.Min != 39000 || pop.Max != 41000 {
		t.Errorf("min/max = %v/%v, want 39000/41000", pop.Min, pop.Max)
	}
	wantMean := (40000.0 + 39000 + 41000) / 3
	if math.Abs(pop.Mean-wantMean) > 1e-9 {
		t.Errorf("mean = %v, want %v", pop.Mean, wantMean)
	}

	fires := view.Summaries["пожары"]
	if fires.Latest != 12 || fires.Mean != 12 || fires.Min != 12 || fires.Max != 12 {
		t.Errorf("single-row summary = %+v", fires)
	}

	if view.Statistics.TotalRows != 4 {
		t.Errorf("total rows = %d, want 4", view.Statistics.TotalRows)
	}
	if view.Statistics.EarliestDate == nil || *view.Statistics.EarliestDate != "2022-01-01" {
		t.Errorf("earliest date = %v", view.Statistics.EarliestDate)
	}
	if view.Statistics.LatestDate == nil || *view.Statistics.LatestDate != "2024-06-15" {
		t.Errorf("latest date = %v", view.Statistics.LatestDate)
	}
}

func TestBuildIndicatorViewEmpty(t *testing.T) {
	view := BuildIndicatorView(nil)
	if len(view.Indicators) != 0 || len(view.Summaries) != 0 {
		t.Errorf("view = %+v, want empty", view)
	}
	if view.Statistics.EarliestDate != nil || view.Statistics.LatestDate != nil {
		t.Errorf("date bounds = %v/%v, want nil/nil", view.Statistics.EarliestDate, view.Statistics.LatestDate)
	}
}

func TestEngineInventoryYearFilter(t *testing.T) {
	store := &fakeReader{facts: sampleFacts()}
	engine := NewEngine(store)

	start, end := 2024, 2024
	view, err := engine.Inventory(context.Background(), Selector{DistrictID: "aldansky"}, YearRange{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}

	if view.Statistics.TotalRows != 2 {
		t.Errorf("total rows = %d, want 2", view.Statistics.TotalRows)
	}
	if view.Statistics.TotalCost != 4000+1200 {
		t.Errorf("total cost = %v, want %v", view.Statistics.TotalCost, 4000+1200)
	}
}

// An unknown district is just an empty result, never an error.
func TestEngineInventoryUnknownDistrict(t *testing.T) {
	store := &fakeReader{facts: sampleFacts()}
	view, err := NewEngine(store).Inventory(context.Background(), Selector{DistrictID: "atlantis"}, YearRange{})
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(view.Inventory) != 0 || view.Statistics.TotalRows != 0 {
		t.Errorf("view = %+v, want empty", view)
	}
}

func TestEngineAvailability(t *testing.T) {
	year := 2022

	tests := []struct {
		name         string
		store        *fakeReader
		wantHasData  bool
		wantFallback *int
	}{
		{"has data", &fakeReader{hasFacts: true, latestYear: &year}, true, nil},
		{"no data with fallback", &fakeReader{hasFacts: false, latestYear: &year}, false, &year},
		{"no data at all", &fakeReader{hasFacts: false}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avail, err := NewEngine(tt.store).Availability(context.Background(), Selector{DistrictID: "aldansky"}, YearRange{})
			if err != nil {
				t.Fatalf("Availability: %v", err)
			}
			if avail.HasData != tt.wantHasData {
				t.Errorf("HasData = %v, want %v", avail.HasData, tt.wantHasData)
			}
			if (avail.FallbackYear == nil) != (tt.wantFallback == nil) {
				t.Fatalf("FallbackYear = %v, want %v", avail.FallbackYear, tt.wantFallback)
			}
			if tt.wantFallback != nil && *avail.FallbackYear != *tt.wantFallback {
				t.Errorf("FallbackYear = %d, want %d", *avail.FallbackYear, *tt.wantFallback)
			}
		})
	}
}

func TestEngineStorageErrorPropagates(t *testing.T) {
	store := &fakeReader{err: errors.New("disk on fire")}
	engine := NewEngine(store)

	if _, err := engine.Inventory(context.Background(), Selector{}, YearRange{}); err == nil {
		t.Error("Inventory: expected error")
	}
	if _, err := engine.Indicators(context.Background(), Selector{}, DateRange{}); err == nil {
		t.Error("Indicators: expected error")
	}
	if _, err := engine.Availability(context.Background(), Selector{}, YearRange{}); err == nil {
		t.Error("Availability: expected error")
	}
}
