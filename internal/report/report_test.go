package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"datasync-service/internal/store"
	"datasync-service/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func seededReport(t *testing.T) *Report {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	batches := []models.SyncBatch{
		{ID: "b1", AccountID: "acct", CreatedAt: now.AddDate(0, 0, -1), SourceURL: "https://api.example.com/items", RecordCount: 10, SourceType: models.SourceGeneric},
		{ID: "b2", AccountID: "acct", CreatedAt: now.AddDate(0, 0, -3), SourceURL: "https://files.example.com/a.xlsx", RecordCount: 5, SourceType: models.SourceExcel},
		{ID: "old", AccountID: "acct", CreatedAt: now.AddDate(0, 0, -40), RecordCount: 99, SourceType: models.SourceGeneric},
		{ID: "x", AccountID: "other", CreatedAt: now, RecordCount: 7, SourceType: models.SourceSurvey},
	}
	for i := range batches {
		require.NoError(t, st.InsertBatch(ctx, &batches[i]))
	}
	r, err := Collect(ctx, st, "acct", 30, now)
	require.NoError(t, err)
	return r
}

func TestCollect(t *testing.T) {
	r := seededReport(t)

	require.Len(t, r.Batches, 2)
	assert.Equal(t, "b1", r.Batches[0].ID)
	assert.Equal(t, 15, r.TotalRecords)
	assert.Equal(t, map[models.SourceType]int{models.SourceGeneric: 1, models.SourceExcel: 1}, r.BySource)
	assert.Equal(t, []models.SourceType{models.SourceExcel, models.SourceGeneric}, r.Sources())
	assert.Equal(t, now.AddDate(0, 0, -30), r.From)
}

func TestWriteCSV(t *testing.T) {
	r := seededReport(t)
	var buf bytes.Buffer

	require.NoError(t, WriteCSV(&buf, r))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Type", "Records", "Source", "Status"}, records[0])
	assert.Equal(t, []string{"2026-10-14 12:00", "generic", "10", "https://api.example.com/items", "success"}, records[1])
	assert.Equal(t, "excel", records[2][1])
}

func TestWriteXLSX(t *testing.T) {
	r := seededReport(t)
	var buf bytes.Buffer

	require.NoError(t, WriteXLSX(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "Syncs"}, f.GetSheetList())

	rows, err := f.GetRows("Syncs")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Records", rows[0][2])
	assert.Equal(t, "10", rows[1][2])

	total, err := f.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "15", total)
}

func TestWritePDF(t *testing.T) {
	r := seededReport(t)

	for _, details := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, WritePDF(&buf, r, details))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	}
}

func TestRenderAndFormats(t *testing.T) {
	r := seededReport(t)

	for _, f := range []Format{FormatCSV, FormatPDF, FormatXLSX} {
		out, err := Render(r, f, true)
		require.NoError(t, err, f)
		assert.NotEmpty(t, out)
	}
	_, err := Render(r, "doc", false)
	assert.Error(t, err)

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("docx")
	assert.Error(t, err)

	assert.Equal(t, "datasync-report-2026-10-15.pdf", FileName(FormatPDF, now))
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
}

func TestEstimatedSize(t *testing.T) {
	assert.InDelta(t, 0.5, EstimatedSize(1000, false, false), 1e-9)
	assert.InDelta(t, 1.5, EstimatedSize(1000, false, true), 1e-9)
	assert.InDelta(t, 3.0, EstimatedSize(1000, true, true), 1e-9)
}
