// Package export writes reserve data back out as xlsx workbooks, for
// offline review and the per-district snapshot files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"reservemap/internal/core"
)

const sheetName = "Резерв"

var header = []string{"Район", "Категория", "Наименование", "Ед. изм.", "Год", "Количество", "Стоимость"}

// WriteWorkbook renders the flat fact rows into a single-sheet workbook. Rows
// are written in the order given, which upstream queries already sort by
// category and item.
func WriteWorkbook(w io.Writer, rows []core.FactRow) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := writeRow(f, 1, anyRow(header)); err != nil {
		return err
	}
	for i, r := range rows {
		cells := []any{r.DistrictID, r.Category, r.Item, r.Unit, r.Year, r.Quantity, r.Cost}
		if err := writeRow(f, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, cells []any) error {
	cellRef, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name for row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheetName, cellRef, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func anyRow(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
