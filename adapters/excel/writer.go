package excel

import (
	"fmt"
	"math"

	"gocfa/domain/dataset"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook saves a table to a single-sheet xlsx file; missing numeric
// cells are left empty.
func WriteWorkbook(path string, t *dataset.ResponseTable) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	headers := t.Columns()
	row := make([]interface{}, len(headers))
	for j, h := range headers {
		row[j] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for r := 0; r < t.NumRows(); r++ {
		for j, name := range headers {
			if label, ok := t.Label(name, r); ok {
				row[j] = label
				continue
			}
			if v := t.Value(name, r); math.IsNaN(v) {
				row[j] = nil
			} else {
				row[j] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}
	return f.SaveAs(path)
}
