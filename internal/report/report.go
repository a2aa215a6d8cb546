// internal/report/report.go
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"datasync-service/internal/store"
	"datasync-service/pkg/models"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"

	DefaultPeriodDays = 30
	MaxPeriodDays     = 365

	// maxDetailRows caps the detail section of the PDF.
	maxDetailRows = 50
	statusSuccess = "success"
	dateLayout    = "2006-01-02 15:04"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatPDF, FormatXLSX:
		return Format(s), nil
	case "":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported report format %q (expected csv, pdf or xlsx)", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

func (f Format) Extension() string { return string(f) }

// Report is the set of batches an account synced inside a period.
type Report struct {
	AccountID    string
	From         time.Time
	To           time.Time
	Batches      []models.SyncBatch
	TotalRecords int
	BySource     map[models.SourceType]int
}

// Collect reads the account's batches of the last periodDays days, newest first.
func Collect(ctx context.Context, st store.Store, accountID string, periodDays int, now time.Time) (*Report, error) {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}
	if periodDays > MaxPeriodDays {
		periodDays = MaxPeriodDays
	}
	to := now.UTC()
	from := to.AddDate(0, 0, -periodDays)

	batches, err := st.ListBatches(ctx, accountID, models.BatchQuery{Since: &from})
	if err != nil {
		return nil, fmt.Errorf("collect batches: %w", err)
	}

	r := &Report{
		AccountID: accountID,
		From:      from,
		To:        to,
		Batches:   batches,
		BySource:  make(map[models.SourceType]int),
	}
	for _, b := range batches {
		r.TotalRecords += b.RecordCount
		r.BySource[b.SourceType]++
	}
	return r, nil
}

// Sources lists the source types present in the report, sorted.
func (r *Report) Sources() []models.SourceType {
	out := make([]models.SourceType, 0, len(r.BySource))
	for s := range r.BySource {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Render encodes the report in the given format.
func Render(r *Report, format Format, includeDetails bool) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatCSV:
		err = WriteCSV(&buf, r)
	case FormatPDF:
		err = WritePDF(&buf, r, includeDetails)
	case FormatXLSX:
		err = WriteXLSX(&buf, r)
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the download name of a rendered report.
func FileName(format Format, now time.Time) string {
	return fmt.Sprintf("datasync-report-%s.%s", now.UTC().Format("2006-01-02"), format.Extension())
}

// EstimatedSize approximates the size of a generated report in MB.
func EstimatedSize(recordCount int, includeCharts, includeDetails bool) float64 {
	size := 0.5
	if includeDetails {
		size += float64(recordCount) * 0.001
	}
	if includeCharts {
		size += 1.5
	}
	return size
}
