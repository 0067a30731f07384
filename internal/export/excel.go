// Package export renders the incident table as an Excel workbook for people
// who want the trouble list outside the CSV share.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/moldworks/taisaku/internal/models"
)

// SheetName is the single worksheet holding the table.
const SheetName = "TroubleList"

// FileName is the suggested download name for the workbook.
const FileName = "trouble_list.xlsx"

// WriteExcel writes records as a one-sheet workbook with the canonical
// header row, in table order. ResponseHours is written as a number so
// spreadsheet formulas work on it. Returns the number of data rows written.
func WriteExcel(w io.Writer, records []models.IncidentRecord) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, 0, models.FieldCount)
	for _, h := range models.Headers() {
		header = append(header, h)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	for i := range records {
		r := &records[i]
		row := []interface{}{
			r.Site,
			r.OccurredOn,
			r.MachineID,
			r.Equipment,
			r.Description,
			r.Cause,
			r.CorrectiveAction,
			r.ResponseHours,
			r.Responder,
			r.InvestigationProcess,
			r.InvestigationNotes,
		}
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	// Text-heavy columns get room; the rest keep compact defaults.
	_ = f.SetColWidth(SheetName, "A", "D", 16)
	_ = f.SetColWidth(SheetName, "E", "G", 40)
	_ = f.SetColWidth(SheetName, "J", "K", 32)

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return len(records), nil
}
