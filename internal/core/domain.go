package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	DistrictKind = "district"
	AgencyKind   = "agency"
)

type (
	// District is seeded reference data: a territory or agency that can
	// receive reserve materials. Never mutated by the application.
	District struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		Population *int64   `json:"population"`
		AreaKm2    *float64 `json:"area_km2"`
		Capital    *string  `json:"capital"`
		Code       *string  `json:"code"`
		Kind       string   `json:"type"`
	}

	// Category groups nomenclature items. Created lazily during ingestion,
	// unique by name.
	Category struct {
		ID   int64
		Name string
	}

	// Item is a single nomenclature line: named, priced, with a unit of
	// measure, owned by exactly one category.
	Item struct {
		ID         int64
		CategoryID int64
		Name       string
		Unit       string
		UnitPrice  float64
	}

	// Distribution records that a district received a quantity of an item
	// in a given year at a given total cost. Append-only.
	Distribution struct {
		ID         int64
		DistrictID string
		ItemID     int64
		Year       int
		Quantity   float64
		TotalCost  float64
	}

	// IndicatorRecord is a dated statistical observation for a district
	// (population dynamics, fire counts, ...). Entered manually or via upload.
	IndicatorRecord struct {
		DistrictID string  `json:"district_id"`
		Date       string  `json:"date"`
		Type       string  `json:"indicator_type"`
		Name       string  `json:"indicator_name"`
		Value      float64 `json:"value"`
		Unit       string  `json:"unit"`
		Source     string  `json:"source"`
	}

	// FactRow is one row of the distribution×item×category join, the flat
	// shape every aggregated view and export is built from.
	FactRow struct {
		DistrictID string
		Category   string
		Item       string
		Unit       string
		Year       int
		Quantity   float64
		Cost       float64
	}

	// IndicatorRow is the indicator-side analogue of FactRow.
	IndicatorRow struct {
		DistrictID string
		Type       string
		Name       string
		Date       string
		Value      float64
		Unit       string
		Source     string
	}
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyDate       = errors.New("empty date")
	ErrInvalidDate     = errors.New("invalid date, want YYYY-MM-DD")
	ErrInvalidValue    = errors.New("value must be a finite number")
	ErrUnknownDistrict = errors.New("unknown district")
)

func (rec IndicatorRecord) Validate() error {
	if strings.TrimSpace(rec.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(rec.Date) == "" {
		return ErrEmptyDate
	}
	if _, err := time.Parse("2006-01-02", rec.Date); err != nil {
		return ErrInvalidDate
	}
	if math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) {
		return ErrInvalidValue
	}
	return nil
}

// Description renders the short overview sentence shown in the info panel.
func (d District) Description() string {
	if d.Kind == AgencyKind {
		return d.Name + " — ведомство Республики Саха (Якутия)."
	}
	return d.Name + " расположен в Республике Саха (Якутия)."
}
