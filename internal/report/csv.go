// internal/report/csv.go
package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{"Date", "Type", "Records", "Source", "Status"}

// WriteCSV writes one line per batch under the fixed header.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range r.Batches {
		record := []string{
			b.CreatedAt.UTC().Format(dateLayout),
			string(b.SourceType),
			strconv.Itoa(b.RecordCount),
			b.SourceURL,
			statusSuccess,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
