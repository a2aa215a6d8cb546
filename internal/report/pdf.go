// internal/report/pdf.go
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"
)

func WritePDF(w io.Writer, r *Report, includeDetails bool) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("DataSync Report", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "DataSync Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", r.From.Format("2006-01-02"), r.To.Format("2006-01-02")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	summaryRow(pdf, "Total syncs", strconv.Itoa(len(r.Batches)))
	summaryRow(pdf, "Total records", strconv.Itoa(r.TotalRecords))

	for _, s := range r.Sources() {
		summaryRow(pdf, "Syncs ("+string(s)+")", strconv.Itoa(r.BySource[s]))
	}

	if includeDetails && len(r.Batches) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, "Sync details")
		pdf.Ln(9)

		widths := []float64{35, 20, 20, 95, 20}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range csvHeader {
			pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 8)
		for i, b := range r.Batches {
			if i == maxDetailRows {
				break
			}
			cells := []string{
				b.CreatedAt.UTC().Format(dateLayout),
				string(b.SourceType),
				strconv.Itoa(b.RecordCount),
				shorten(b.SourceURL, 60),
				statusSuccess,
			}
			for j, c := range cells {
				pdf.CellFormat(widths[j], 6, c, "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		if len(r.Batches) > maxDetailRows {
			pdf.Ln(2)
			pdf.Cell(0, 6, fmt.Sprintf("... and %d more", len(r.Batches)-maxDetailRows))
		}
	}

	return pdf.Output(w)
}

func summaryRow(pdf *fpdf.Fpdf, label, value string) {
	pdf.CellFormat(60, 7, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
