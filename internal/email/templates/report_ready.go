package templates

import (
	_ "embed"
	"html/template"
	"strings"
	"time"
)

//go:embed report_ready.html
var reportReadyHTML string

var reportReadyTmpl = template.Must(template.New("report_ready").Parse(reportReadyHTML))

// ReportReadyData feeds the report e-mail. Optional fields may stay empty.
type ReportReadyData struct {
	RecipientName string
	Format        string // Required, e.g. "PDF"
	PeriodStart   string
	PeriodEnd     string
	TotalSyncs    int
	TotalRecords  int
	Message       string
	DownloadURL   string
	Subject       string // Auto-set if empty
	Year          int    // Auto-set if 0
}

func ReportSubject(format string) string {
	return "Your DataSync " + strings.ToUpper(format) + " report"
}

func RenderReportReadyEmail(data ReportReadyData) (string, error) {
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}
	data.Format = strings.ToUpper(data.Format)
	if data.Subject == "" {
		data.Subject = ReportSubject(data.Format)
	}

	var buf strings.Builder
	err := reportReadyTmpl.Execute(&buf, data)
	return buf.String(), err
}
