package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"reservemap/internal/core"
	"reservemap/internal/ingest"
	"reservemap/internal/report"
)

type SQLiteRepository struct {
	db *sql.DB
}

// The repository is both the read side of the aggregation engine and the
// write side of the ingestion parser.
var _ report.FactReader = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Districts returns the full seeded reference list, grouped by kind,
// alphabetical within each kind.
func (r *SQLiteRepository) Districts(ctx context.Context) ([]core.District, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, population, area_km2, capital, code, type
		 FROM districts ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("query districts: %w", err)
	}
	defer rows.Close()

	var out []core.District
	for rows.Next() {
		d, err := scanDistrict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan district: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FindDistrict resolves a district by id, exact name, or name fragment, in
// that order of preference.
func (r *SQLiteRepository) FindDistrict(ctx context.Context, key string) (core.District, error) {
	key = strings.TrimSpace(key)

	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, population, area_km2, capital, code, type
		 FROM districts WHERE id = ? OR lower(name) = lower(?) LIMIT 1`, key, key)
	d, err := scanDistrict(row)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.District{}, fmt.Errorf("find district %q: %w", key, err)
	}

	row = r.db.QueryRowContext(ctx,
		`SELECT id, name, population, area_km2, capital, code, type
		 FROM districts WHERE lower(name) LIKE '%' || lower(?) || '%' LIMIT 1`, key)
	d, err = scanDistrict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.District{}, core.ErrUnknownDistrict
	}
	if err != nil {
		return core.District{}, fmt.Errorf("find district %q: %w", key, err)
	}
	return d, nil
}

// InsertIndicator appends one manually entered indicator record.
func (r *SQLiteRepository) InsertIndicator(ctx context.Context, rec core.IndicatorRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO district_data (district_id, date, indicator_type, indicator_name, value, unit, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.DistrictID, rec.Date, rec.Type, rec.Name, rec.Value, rec.Unit, rec.Source)
	if err != nil {
		return 0, fmt.Errorf("insert indicator: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("indicator last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Indicator record saved",
		"id", id,
		"district", rec.DistrictID,
		"indicator", rec.Name,
		"date", rec.Date)

	return id, nil
}

// RunIngestion executes one parser pass inside a transaction. If fn fails
// the transaction rolls back and nothing from the run is visible.
func (r *SQLiteRepository) RunIngestion(ctx context.Context, fn func(w ingest.CatalogWriter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingestion tx: %w", err)
	}

	if err := fn(&txWriter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Ingestion rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingestion tx: %w", err)
	}
	return nil
}

// txWriter satisfies ingest.CatalogWriter against one open transaction.
type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) EnsureCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := w.tx.QueryRowContext(ctx,
		`SELECT id FROM item_categories WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup category: %w", err)
	}

	res, err := w.tx.ExecContext(ctx,
		`INSERT INTO item_categories (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	return res.LastInsertId()
}

func (w *txWriter) CreateItem(ctx context.Context, categoryID int64, name, unit string, unitPrice float64) (int64, error) {
	res, err := w.tx.ExecContext(ctx,
		`INSERT INTO items (category_id, name, unit, unit_price) VALUES (?, ?, ?, ?)`,
		categoryID, name, unit, unitPrice)
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	return res.LastInsertId()
}

func (w *txWriter) CreateDistribution(ctx context.Context, districtID string, itemID int64, year int, quantity, totalCost float64) error {
	_, err := w.tx.ExecContext(ctx,
		`INSERT INTO distributions (district_id, item_id, issue_year, quantity, total_cost)
		 VALUES (?, ?, ?, ?, ?)`,
		districtID, itemID, year, quantity, totalCost)
	if err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

// QueryFacts implements report.FactReader. Ordering is part of the
// contract: category name, item name, then insertion order.
func (r *SQLiteRepository) QueryFacts(ctx context.Context, sel report.Selector, years report.YearRange) ([]core.FactRow, error) {
	where, args := factFilter(sel, years)
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.district_id, c.name, i.name, i.unit, d.issue_year, d.quantity, d.total_cost
		 FROM distributions d
		 JOIN items i ON i.id = d.item_id
		 JOIN item_categories c ON c.id = i.category_id`+
			where+` ORDER BY c.name, i.name, d.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []core.FactRow
	for rows.Next() {
		var f core.FactRow
		if err := rows.Scan(&f.DistrictID, &f.Category, &f.Item, &f.Unit, &f.Year, &f.Quantity, &f.Cost); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// QueryIndicators implements report.FactReader for the indicator variant.
// Rows come back grouped by type and name, chronological within a name.
func (r *SQLiteRepository) QueryIndicators(ctx context.Context, sel report.Selector, dates report.DateRange) ([]core.IndicatorRow, error) {
	where := " WHERE 1=1"
	var args []any
	if !sel.All() {
		where += " AND district_id = ?"
		args = append(args, sel.DistrictID)
	}
	if dates.Start != "" {
		where += " AND date >= ?"
		args = append(args, dates.Start)
	}
	if dates.End != "" {
		where += " AND date <= ?"
		args = append(args, dates.End)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT district_id, indicator_type, indicator_name, date, value, unit, source
		 FROM district_data`+where+` ORDER BY indicator_type, indicator_name, date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query indicators: %w", err)
	}
	defer rows.Close()

	var out []core.IndicatorRow
	for rows.Next() {
		var ir core.IndicatorRow
		if err := rows.Scan(&ir.DistrictID, &ir.Type, &ir.Name, &ir.Date, &ir.Value, &ir.Unit, &ir.Source); err != nil {
			return nil, fmt.Errorf("scan indicator row: %w", err)
		}
		out = append(out, ir)
	}
	return out, rows.Err()
}

// HasFacts implements report.FactReader.
func (r *SQLiteRepository) HasFacts(ctx context.Context, sel report.Selector, years report.YearRange) (bool, error) {
	where, args := factFilter(sel, years)
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM distributions d`+where+`)`, args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("facts existence check: %w", err)
	}
	return exists, nil
}

// LatestFactYear implements report.FactReader.
func (r *SQLiteRepository) LatestFactYear(ctx context.Context, sel report.Selector) (*int, error) {
	where, args := factFilter(sel, report.YearRange{})
	var latest sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(d.issue_year) FROM distributions d`+where, args...).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("latest fact year: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	y := int(latest.Int64)
	return &y, nil
}

// factFilter builds the shared WHERE clause over the distributions table
// (aliased d) for a selector and year range.
func factFilter(sel report.Selector, years report.YearRange) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if !sel.All() {
		where += " AND d.district_id = ?"
		args = append(args, sel.DistrictID)
	}
	if years.Start != nil {
		where += " AND d.issue_year >= ?"
		args = append(args, *years.Start)
	}
	if years.End != nil {
		where += " AND d.issue_year <= ?"
		args = append(args, *years.End)
	}
	return where, args
}

func scanDistrict(row interface{ Scan(dest ...any) error }) (core.District, error) {
	var (
		d          core.District
		population sql.NullInt64
		area       sql.NullFloat64
		capital    sql.NullString
		code       sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Name, &population, &area, &capital, &code, &d.Kind); err != nil {
		return core.District{}, err
	}
	if population.Valid {
		d.Population = &population.Int64
	}
	if area.Valid {
		d.AreaKm2 = &area.Float64
	}
	if capital.Valid {
		d.Capital = &capital.String
	}
	if code.Valid {
		d.Code = &code.String
	}
	return d, nil
}
