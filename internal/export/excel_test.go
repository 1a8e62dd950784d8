package export

import (
	"bytes"
	"testing"

	"reservemap/internal/core"
	"reservemap/internal/grid/excel"
)

func TestWriteWorkbook(t *testing.T) {
	rows := []core.FactRow{
		{DistrictID: "aldansky", Category: "Продовольствие", Item: "Мука", Unit: "кг", Year: 2023, Quantity: 100, Cost: 4500},
		{DistrictID: "amginsky", Category: "Медицина", Item: "Бинт", Unit: "шт", Year: 2024, Quantity: 50, Cost: 600},
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, rows); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	grid, err := excel.ReadGrid(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadGrid: %v", err)
	}

	if len(grid) != 3 {
		t.Fatalf("rows = %d, want 3 (header + 2)", len(grid))
	}
	if grid[0][0] != "Район" || grid[0][6] != "Стоимость" {
		t.Errorf("header = %v", grid[0])
	}
	if grid[1][0] != "aldansky" || grid[1][2] != "Мука" || grid[1][4] != "2023" {
		t.Errorf("row 1 = %v", grid[1])
	}
	if grid[2][1] != "Медицина" || grid[2][6] != "600" {
		t.Errorf("row 2 = %v", grid[2])
	}
}

func TestWriteWorkbookEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, nil); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	grid, err := excel.ReadGrid(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadGrid: %v", err)
	}
	if len(grid) != 1 {
		t.Fatalf("rows = %d, want header only", len(grid))
	}
}
