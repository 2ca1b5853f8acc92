package reporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
)

// WriteWorkbook saves the summary rows as an xlsx workbook with one sheet per
// reporting date. Sheets are named YYYYMMDD and hold the same columns as the
// exported files.
func WriteWorkbook(path string, rows []*models.SummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	partitions := PartitionByDate(rows)
	if len(partitions) == 0 {
		if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
			return errors.ExportError(errors.CodeWriteFailed, path, err)
		}
		if err := setRow(f, "Summary", 1, headerCells()); err != nil {
			return errors.ExportError(errors.CodeWriteFailed, path, err)
		}
	}

	for i, partition := range partitions {
		sheet := fmt.Sprintf("%04d%02d%02d", partition.Date.Year, int(partition.Date.Month), partition.Date.Day)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return errors.ExportError(errors.CodeWriteFailed, path, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return errors.ExportError(errors.CodeWriteFailed, path, err)
		}

		if err := setRow(f, sheet, 1, headerCells()); err != nil {
			return errors.ExportError(errors.CodeWriteFailed, path, err)
		}
		for j, row := range partition.Rows {
			if err := setRow(f, sheet, j+2, workbookCells(row)); err != nil {
				return errors.ExportError(errors.CodeWriteFailed, path, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.ExportError(errors.CodeWriteFailed, path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func headerCells() []interface{} {
	cells := make([]interface{}, len(Columns))
	for i, c := range Columns {
		cells[i] = c
	}
	return cells
}

// workbookCells keeps amount and number numeric; null cells stay empty
func workbookCells(row *models.SummaryRow) []interface{} {
	amount, _ := row.Amount.Round(2).Float64()
	return []interface{}{
		row.FICode,
		row.Date.String(),
		row.ServiceSystemType.String(),
		nullCell(row.TransactionType),
		nullCell(row.MerchantBusinessType),
		nullCell(row.MerchantCategoryCode),
		amount,
		row.Number,
		row.TerminalAverageAmountRange,
	}
}

func nullCell(n models.NullString) interface{} {
	if n.IsNull() {
		return nil
	}
	return n.Value
}
