// internal/source/excel.go
package source

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"datasync-service/internal/pipeline"
	"datasync-service/internal/syncerr"

	"github.com/xuri/excelize/v2"
)

const spreadsheetAccept = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,application/vnd.ms-excel,*/*"

// ExcelResult holds the rows of the first sheet of a workbook.
type ExcelResult struct {
	Rows       []any    `json:"rows"`
	SheetNames []string `json:"sheet_names"`
	TotalRows  int      `json:"total_rows"`
}

type ExcelAdapter struct {
	client      HTTPDoer
	classifier  *Classifier
	maxBodySize int64
}

func NewExcelAdapter(client HTTPDoer, classifier *Classifier, maxBodySize int64) *ExcelAdapter {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &ExcelAdapter{client: client, classifier: classifier, maxBodySize: maxBodySize}
}

// FetchAndParse downloads a workbook and parses its first sheet.
func (a *ExcelAdapter) FetchAndParse(ctx context.Context, rawURL, token string) (*ExcelResult, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, &syncerr.ConfigError{Field: "url", Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &syncerr.ConfigError{Field: "url", Reason: err.Error()}
	}
	req.Header.Set("Accept", spreadsheetAccept)
	if auth := a.classifier.AuthorizationHeader(rawURL, token); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	log.Printf("📥 [EXCEL] Downloading %s", rawURL)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &syncerr.UnreachableError{URL: rawURL, Direct: &syncerr.TransportError{URL: rawURL, Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &syncerr.DownloadError{StatusCode: resp.StatusCode, Message: downloadCause(resp.StatusCode)}
	}
	if isHTML(resp.Header.Get("Content-Type")) {
		return nil, &syncerr.FormatError{Message: "the URL points to a web page (HTML) rather than an Excel file"}
	}

	buf, err := readLimited(resp.Body, a.maxBodySize)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, &syncerr.FormatError{Message: "the downloaded file is empty"}
	}
	return ParseBuffer(buf)
}

func downloadCause(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "file not found, check the URL"
	case status == http.StatusUnauthorized:
		return "unauthorized, check your authentication token"
	case status == http.StatusForbidden:
		return "access forbidden, check your permissions on this file"
	case status >= 500:
		return "the file server is having problems"
	default:
		return http.StatusText(status)
	}
}

// ParseBuffer reads the first sheet of an xlsx workbook, or of a legacy
// BIFF .xls workbook when buf starts with the OLE signature. Row 1 holds the
// headers, rows whose cells are all empty are skipped and missing cells
// default to "".
func ParseBuffer(buf []byte) (*ExcelResult, error) {
	if len(buf) == 0 {
		return nil, &syncerr.FormatError{Message: "the downloaded file is empty"}
	}

	var (
		sheets []string
		rows   [][]string
		err    error
	)
	if isLegacyXLS(buf) {
		sheets, rows, err = readXLS(buf)
	} else {
		sheets, rows, err = readXLSX(buf)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || isBlankRow(rows[0]) {
		return nil, &syncerr.ParseError{Message: "no header found in the first row"}
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		headers[i] = pipeline.SanitizeKeyWithFallback(h, fmt.Sprintf("field_%d", i))
	}

	records := make([]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		record := make(map[string]any, len(headers))
		for i, key := range headers {
			if key == "" {
				continue
			}
			value := ""
			if i < len(row) {
				value = row[i]
			}
			record[key] = value
		}
		records = append(records, record)
	}

	log.Printf("✅ [EXCEL] Parsed %d rows from sheet %q", len(records), sheets[0])
	return &ExcelResult{
		Rows:       records,
		SheetNames: sheets,
		TotalRows:  len(records),
	}, nil
}

func readXLSX(buf []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return nil, nil, &syncerr.ParseError{Message: "unable to open the Excel workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &syncerr.ParseError{Message: "the Excel file has no worksheet"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, &syncerr.ParseError{Message: fmt.Sprintf("unable to read the first worksheet %q", sheets[0]), Err: err}
	}
	return sheets, rows, nil
}

// Validate parses the workbook at rawURL and returns its first three rows as a sample.
func (a *ExcelAdapter) Validate(ctx context.Context, rawURL, token string) (*ExcelResult, []any, error) {
	res, err := a.FetchAndParse(ctx, rawURL, token)
	if err != nil {
		return nil, nil, err
	}
	sample := res.Rows
	if len(sample) > 3 {
		sample = sample[:3]
	}
	return res, sample, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
