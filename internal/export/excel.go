package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/FranksOps/companyfinder/internal/record"
)

const sheetName = "Companies"

// writeExcel writes an xlsx workbook with a header row and one row per
// record. Absent values are left as empty cells.
func writeExcel(records []record.Record, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("export: excel: %w", err)
	}

	header := make([]any, len(record.Fields))
	for i, name := range record.Fields {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("export: excel: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: excel: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(record.Fields), 1)
	if err != nil {
		return fmt.Errorf("export: excel: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("export: excel: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: excel: %w", err)
		}
		values := r.Values()
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("export: excel: %w", err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "E", 32); err != nil {
		return fmt.Errorf("export: excel: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: excel: %w", err)
	}
	return nil
}
