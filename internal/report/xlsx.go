// internal/report/xlsx.go
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	syncsSheet   = "Syncs"
)

// WriteXLSX writes a workbook with a Summary sheet and one row per batch in Syncs.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Period start", r.From.Format("2006-01-02")},
		{"Period end", r.To.Format("2006-01-02")},
		{"Total syncs", len(r.Batches)},
		{"Total records", r.TotalRecords},
	}
	for _, s := range r.Sources() {
		summary = append(summary, []interface{}{"Syncs (" + string(s) + ")", r.BySource[s]})
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if _, err := f.NewSheet(syncsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	header := make([]interface{}, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(syncsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, b := range r.Batches {
		row := []interface{}{
			b.CreatedAt.UTC().Format(dateLayout),
			string(b.SourceType),
			b.RecordCount,
			b.SourceURL,
			statusSuccess,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(syncsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}
