package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func validLayout() Layout {
	return Layout{
		HeaderRows: 5,
		Columns: []ColumnBinding{
			{QuantityCol: 5, CostCol: 6, DistrictID: "aldansky"},
			{QuantityCol: 7, CostCol: 8, DistrictID: "amginsky"},
		},
	}
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Layout)
		wantErr bool
	}{
		{"valid", func(l *Layout) {}, false},
		{"negative header rows", func(l *Layout) { l.HeaderRows = -1 }, true},
		{"no bindings", func(l *Layout) { l.Columns = nil }, true},
		{"empty district id", func(l *Layout) { l.Columns[0].DistrictID = "" }, true},
		{"quantity inside nomenclature columns", func(l *Layout) { l.Columns[0].QuantityCol = 2 }, true},
		{"quantity equals cost", func(l *Layout) { l.Columns[0].CostCol = l.Columns[0].QuantityCol }, true},
		{"column bound twice", func(l *Layout) { l.Columns[1].QuantityCol = l.Columns[0].CostCol }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLayout()
			tt.mutate(&l)
			err := l.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.json")
	data := `{
		"header_rows": 5,
		"columns": [
			{"quantity_col": 5, "cost_col": 6, "district_id": "aldansky"},
			{"quantity_col": 7, "cost_col": 8, "district_id": "amginsky"}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := LoadLayout(path)
	if err != nil {
		t.Fatalf("LoadLayout: %v", err)
	}
	if l.HeaderRows != 5 || len(l.Columns) != 2 {
		t.Errorf("layout = %+v", l)
	}
	if l.Columns[1].DistrictID != "amginsky" {
		t.Errorf("second binding = %+v", l.Columns[1])
	}
}

func TestLoadLayoutErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadLayout(filepath.Join(dir, "nope.json")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadLayout(path); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid layout", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.json")
		if err := os.WriteFile(path, []byte(`{"header_rows": 5, "columns": []}`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadLayout(path); err == nil {
			t.Fatal("expected error")
		}
	})
}
