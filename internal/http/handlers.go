package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reservemap/internal/core"
	"reservemap/internal/export"
	"reservemap/internal/grid/excel"
	"reservemap/internal/ingest"
	"reservemap/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleDistricts lists the seeded reference data for the map.
func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	districts, err := s.store.Districts(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "District list error", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load districts")
		return
	}
	writeJSON(w, http.StatusOK, districts)
}

// handleDistrict resolves one district by id, exact name, or name fragment.
func (s *Server) handleDistrict(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("id")
	d, err := s.store.FindDistrict(r.Context(), key)
	if errors.Is(err, core.ErrUnknownDistrict) {
		writeError(w, http.StatusNotFound, "district not found: "+key)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "District lookup error", "error", err, "key", key)
		writeError(w, http.StatusInternalServerError, "failed to load district")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		core.District
		Description string `json:"description"`
	}{District: d, Description: d.Description()})
}

// handleInventory serves the category→item inventory view. An unknown
// district yields an empty view, the same as a district with no data.
func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	sel := report.Selector{DistrictID: r.PathValue("id")}
	years, err := yearRangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := viewCacheKey(sel.DistrictID, r.URL.Query().Get("start_year"), r.URL.Query().Get("end_year"))
	if view, found := s.inventoryCache.Get(key); found {
		writeJSON(w, http.StatusOK, view)
		return
	}

	view, err := s.engine.Inventory(r.Context(), sel, years)
	if err != nil {
		slog.ErrorContext(r.Context(), "Inventory view error", "error", err, "district", sel.DistrictID)
		writeError(w, http.StatusInternalServerError, "failed to build inventory view")
		return
	}

	s.inventoryCache.Set(key, view)
	writeJSON(w, http.StatusOK, view)
}

// handleCreateIndicator appends one manually entered indicator record.
func (s *Server) handleCreateIndicator(w http.ResponseWriter, r *http.Request) {
	var rec core.IndicatorRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := r.PathValue("id")
	d, err := s.store.FindDistrict(r.Context(), key)
	if err != nil {
		if errors.Is(err, core.ErrUnknownDistrict) {
			writeError(w, http.StatusNotFound, "district not found: "+key)
			return
		}
		slog.ErrorContext(r.Context(), "District lookup error", "error", err, "key", key)
		writeError(w, http.StatusInternalServerError, "failed to verify district")
		return
	}
	rec.DistrictID = d.ID

	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.store.InsertIndicator(r.Context(), rec)
	if err != nil {
		slog.ErrorContext(r.Context(), "Indicator insert error", "error", err, "district", rec.DistrictID)
		writeError(w, http.StatusInternalServerError, "failed to save record")
		return
	}

	s.indicatorCache.Purge()
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

// handleIndicators serves the type→name indicator view with summaries.
func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	sel := report.Selector{DistrictID: r.PathValue("id")}
	dates := report.DateRange{
		Start: strings.TrimSpace(r.URL.Query().Get("start_date")),
		End:   strings.TrimSpace(r.URL.Query().Get("end_date")),
	}

	key := viewCacheKey(sel.DistrictID, dates.Start, dates.End)
	if view, found := s.indicatorCache.Get(key); found {
		writeJSON(w, http.StatusOK, view)
		return
	}

	view, err := s.engine.Indicators(r.Context(), sel, dates)
	if err != nil {
		slog.ErrorContext(r.Context(), "Indicator view error", "error", err, "district", sel.DistrictID)
		writeError(w, http.StatusInternalServerError, "failed to build indicator view")
		return
	}

	s.indicatorCache.Set(key, view)
	writeJSON(w, http.StatusOK, view)
}

// handleAvailability answers whether the requested period has data, and
// which year to fall back to when it does not.
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	sel := report.Selector{DistrictID: r.PathValue("id")}
	years, err := yearRangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	avail, err := s.engine.Availability(r.Context(), sel, years)
	if err != nil {
		slog.ErrorContext(r.Context(), "Availability check error", "error", err, "district", sel.DistrictID)
		writeError(w, http.StatusInternalServerError, "failed to check availability")
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// handleUpload ingests an uploaded xlsx report. The whole run is atomic:
// either every fact lands or the response carries the structural reason.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	year, err := strconv.Atoi(strings.TrimSpace(r.FormValue("year")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	grid, err := excel.ReadGrid(file)
	if err != nil {
		slog.ErrorContext(r.Context(), "Workbook read error", "error", err, "filename", header.Filename)
		writeError(w, http.StatusBadRequest, "could not read workbook: "+err.Error())
		return
	}

	count, err := s.ingester.Ingest(r.Context(), grid, year, header.Filename)
	if err != nil {
		slog.ErrorContext(r.Context(), "Ingestion failed", "error", err, "filename", header.Filename, "year", year)
		writeJSON(w, ingestStatus(err), map[string]any{
			"success": false,
			"count":   0,
			"error":   err.Error(),
		})
		return
	}

	// The run may have touched any district, so drop every cached view.
	s.inventoryCache.Purge()
	s.indicatorCache.Purge()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

// handleExport streams the filtered fact rows as an xlsx workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sel := report.Selector{DistrictID: strings.TrimSpace(r.URL.Query().Get("district"))}
	years, err := yearRangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.store.QueryFacts(r.Context(), sel, years)
	if err != nil {
		slog.ErrorContext(r.Context(), "Export query error", "error", err, "district", sel.DistrictID)
		writeError(w, http.StatusInternalServerError, "failed to load export data")
		return
	}

	name := "reserves"
	if !sel.All() {
		name += "_" + sel.DistrictID
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.xlsx", name, time.Now().Format("2006-01-02")))

	if err := export.WriteWorkbook(w, rows); err != nil {
		// Headers are already out, all we can do is log.
		slog.ErrorContext(r.Context(), "Export write error", "error", err, "district", sel.DistrictID)
	}
}

// handleSheetSync ingests the configured remote spreadsheet range, for
// deployments where districts edit the source report online.
func (s *Server) handleSheetSync(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return
	}

	grid, err := s.sheetSource.FetchGrid(r.Context(), s.sheetRange)
	if err != nil {
		slog.ErrorContext(r.Context(), "Sheet fetch error", "error", err, "range", s.sheetRange)
		writeError(w, http.StatusBadGateway, "could not fetch spreadsheet: "+err.Error())
		return
	}

	count, err := s.ingester.Ingest(r.Context(), grid, year, "sheet:"+s.sheetRange)
	if err != nil {
		slog.ErrorContext(r.Context(), "Sheet ingestion failed", "error", err, "year", year)
		writeJSON(w, ingestStatus(err), map[string]any{
			"success": false,
			"count":   0,
			"error":   err.Error(),
		})
		return
	}

	s.inventoryCache.Purge()
	s.indicatorCache.Purge()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

// ingestStatus maps a failed run to a response code: structural report
// problems are the client's to fix, everything else is ours.
func ingestStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrEmptyGrid),
		errors.Is(err, ingest.ErrHeaderOverrun),
		errors.Is(err, ingest.ErrItemBeforeCategory):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// yearRangeFromQuery parses optional inclusive start_year/end_year filters.
func yearRangeFromQuery(r *http.Request) (report.YearRange, error) {
	var years report.YearRange
	if v := strings.TrimSpace(r.URL.Query().Get("start_year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return report.YearRange{}, fmt.Errorf("start_year must be an integer")
		}
		years.Start = &y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("end_year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return report.YearRange{}, fmt.Errorf("end_year must be an integer")
		}
		years.End = &y
	}
	return years, nil
}

func viewCacheKey(district, start, end string) string {
	return district + "|" + start + "|" + end
}
