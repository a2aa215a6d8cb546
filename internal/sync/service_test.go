package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"datasync-service/internal/pipeline"
	"datasync-service/internal/sse"
	"datasync-service/internal/store"
	"datasync-service/internal/syncerr"
	"datasync-service/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type recordedEvents struct {
	events []sse.Event
}

func (r *recordedEvents) Publish(e sse.Event) { r.events = append(r.events, e) }

func (r *recordedEvents) types() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordedPushes struct {
	titles []string
}

func (r *recordedPushes) SendToToken(_ context.Context, _ string, title, _ string, _ map[string]interface{}) error {
	r.titles = append(r.titles, title)
	return nil
}

type fixture struct {
	svc    *Service
	store  *store.MemoryStore
	events *recordedEvents
	pushes *recordedPushes
	server *httptest.Server
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"__id__", "name"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"1", "Ana"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"2", "Bo"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	xlsx := workbookBytes(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"__id__":1,"meta":{"__v__":2}},{"__id__":2}]}`))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/files/data.xlsx", func(w http.ResponseWriter, r *http.Request) {
		w.Write(xlsx)
	})
	mux.HandleFunc("/api/v2/assets/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token kobo" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2/assets/":
			w.Write([]byte(`{"results":[{"uid":"ABC","name":"Visits","asset_type":"survey","deployment__active":true}]}`))
		case "/api/v2/assets/ABC/data/":
			w.Write([]byte(`{"count":2,"results":[{"_id":1,"__version__":"v1"},{"_id":2,"__version__":"v1"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	st := store.NewMemoryStore()
	events := &recordedEvents{}
	pushes := &recordedPushes{}
	svc := NewService(st, http.DefaultClient, events, pushes, Options{
		SurveyDomain:     "localhost",
		ProxyBase:        "",
		SurveyMaxPerForm: 100,
		Limits:           pipeline.DefaultLimits(),
	})
	return &fixture{svc: svc, store: st, events: events, pushes: pushes, server: srv}
}

// url addresses the test server by IP, which classifies as a generic host.
func (f *fixture) url(path string) string {
	return f.server.URL + path
}

// surveyURL addresses the same server through the survey domain.
func (f *fixture) surveyURL(path string) string {
	return strings.Replace(f.server.URL, "127.0.0.1", "localhost", 1) + path
}

func (f *fixture) configure(t *testing.T, account, rawURL, token string) {
	t.Helper()
	require.NoError(t, f.svc.SaveConfig(context.Background(), account, models.SourceConfig{
		URL:   rawURL,
		Token: token,
	}, strPtr("device-token")))
}

func strPtr(s string) *string { return &s }

func TestSyncGenericSource(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.url("/items"), "")

	res, err := f.svc.Sync(context.Background(), "acct")

	require.NoError(t, err)
	assert.Equal(t, models.SourceGeneric, res.Batch.SourceType)
	assert.Equal(t, 2, res.Batch.RecordCount)
	assert.Equal(t, "sync succeeded: 2 record(s) synced", res.Message)
	assert.Equal(t, map[string]any{"id": float64(1), "meta": map[string]any{"v": float64(2)}}, res.Batch.Data[0])

	assert.Equal(t, []string{sse.EventSyncStarted, sse.EventSyncCompleted}, f.events.types())
	assert.Equal(t, "acct", f.events.events[1].AccountID)
	assert.Equal(t, []string{"Sync completed"}, f.pushes.titles)

	settings, err := f.store.GetSettings(context.Background(), "acct")
	require.NoError(t, err)
	require.NotNil(t, settings.LastSyncAt)
	assert.Equal(t, res.Batch.CreatedAt, *settings.LastSyncAt)
}

func TestSyncExcelSource(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.url("/files/data.xlsx"), "")

	res, err := f.svc.Sync(context.Background(), "acct")

	require.NoError(t, err)
	assert.Equal(t, models.SourceExcel, res.Batch.SourceType)
	assert.Equal(t, 2, res.Batch.RecordCount)
	assert.Equal(t, map[string]any{"id": "1", "name": "Ana"}, res.Batch.Data[0])
}

func TestSyncSurveyDataEndpoint(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.surveyURL("/api/v2/assets/ABC/data/"), "kobo")

	res, err := f.svc.Sync(context.Background(), "acct")

	require.NoError(t, err)
	assert.Equal(t, models.SourceSurvey, res.Batch.SourceType)
	assert.Equal(t, 2, res.Batch.RecordCount)
	assert.Equal(t, map[string]any{"_id": float64(1), "version": "v1"}, res.Batch.Data[0])
}

func TestSyncSurveyAccount(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.surveyURL("/api/v2/assets/"), "kobo")

	res, err := f.svc.Sync(context.Background(), "acct")

	require.NoError(t, err)
	assert.Equal(t, 2, res.Batch.RecordCount)

	forms, err := f.svc.ListForms(context.Background(), "acct")
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, "ABC", forms[0].UID)
}

func TestSyncSurveyBadToken(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.surveyURL("/api/v2/assets/ABC/data/"), "wrong")

	_, err := f.svc.Sync(context.Background(), "acct")

	var authErr *syncerr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, []string{sse.EventSyncStarted, sse.EventSyncFailed}, f.events.types())
	assert.Equal(t, []string{"Sync failed"}, f.pushes.titles)

	stored, _ := f.store.ListBatches(context.Background(), "acct", models.BatchQuery{})
	assert.Empty(t, stored)
}

func TestSyncEmptyResult(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.url("/empty"), "")

	res, err := f.svc.Sync(context.Background(), "acct")

	require.NoError(t, err)
	assert.Zero(t, res.Batch.RecordCount)
	assert.Equal(t, "sync succeeded, but no data was found", res.Message)
}

func TestSyncWithoutConfig(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Sync(context.Background(), "nobody")

	var cfgErr *syncerr.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, f.events.events)
}

func TestSyncRejectsConcurrentRunForSameAccount(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.url("/items"), "")
	require.True(t, f.svc.acquire("acct"))

	_, err := f.svc.Sync(context.Background(), "acct")
	assert.ErrorIs(t, err, syncerr.ErrSyncInProgress)

	f.configure(t, "other", f.url("/items"), "")
	_, err = f.svc.Sync(context.Background(), "other")
	assert.NoError(t, err)

	f.svc.release("acct")
	_, err = f.svc.Sync(context.Background(), "acct")
	assert.NoError(t, err)
}

func TestSyncPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.url("/items"), "")
	f.store.FailInsert = errors.New("quota exceeded")

	_, err := f.svc.Sync(context.Background(), "acct")

	var pe *syncerr.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, sse.EventSyncFailed, f.events.events[len(f.events.events)-1].Type)
}

func TestSaveConfigValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SaveConfig(ctx, "acct", models.SourceConfig{URL: "not a url"}, nil)
	var cfgErr *syncerr.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "url", cfgErr.Field)

	require.NoError(t, f.svc.SaveConfig(ctx, "acct", models.SourceConfig{URL: "  https://api.example.com/x  ", Token: " t "}, nil))
	settings, err := f.svc.GetConfig(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/x", settings.Source.URL)
	assert.Equal(t, "t", settings.Source.Token)

	require.NoError(t, f.svc.SaveConfig(ctx, "acct", models.SourceConfig{}, nil))
}

func TestSaveConfigKeepsNotifyToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SaveConfig(ctx, "acct", models.SourceConfig{URL: "https://a.example/x"}, strPtr(" device-token ")))
	require.NoError(t, f.svc.SaveConfig(ctx, "acct", models.SourceConfig{URL: "https://b.example/y"}, nil))

	settings, err := f.svc.GetConfig(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "https://b.example/y", settings.Source.URL)
	assert.Equal(t, "device-token", settings.NotifyToken)

	require.NoError(t, f.svc.SaveConfig(ctx, "acct", models.SourceConfig{URL: "https://b.example/y"}, strPtr("")))
	settings, err = f.svc.GetConfig(ctx, "acct")
	require.NoError(t, err)
	assert.Empty(t, settings.NotifyToken)
}

func TestListFormsRequiresToken(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.surveyURL("/api/v2/assets/"), "")

	_, err := f.svc.ListForms(context.Background(), "acct")

	var cfgErr *syncerr.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "token", cfgErr.Field)
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.TestConnection(ctx, "acct", &models.SourceConfig{URL: "ftp://x"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = f.svc.TestConnection(ctx, "acct", &models.SourceConfig{URL: f.server.URL + "/items"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.SourceGeneric, res.SourceType)
	assert.Len(t, res.Sample, 2)
	assert.Equal(t, map[string]any{"id": float64(2)}, res.Sample[1])

	res, err = f.svc.TestConnection(ctx, "acct", &models.SourceConfig{URL: f.server.URL + "/files/data.xlsx"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, `2 data row(s) found in sheet "Sheet1"`)

	res, err = f.svc.TestConnection(ctx, "acct", &models.SourceConfig{URL: f.surveyURL("/api/v2/assets/"), Token: "kobo"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "connection succeeded: 1 form(s) found", res.Message)

	res, err = f.svc.TestConnection(ctx, "acct", &models.SourceConfig{URL: f.server.URL + "/missing"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "404")

	stored, _ := f.store.ListBatches(ctx, "acct", models.BatchQuery{})
	assert.Empty(t, stored)
}

func TestTestConnectionUsesStoredConfig(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.url("/items"), "")

	res, err := f.svc.TestConnection(context.Background(), "acct", nil)

	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.configure(t, "acct", f.url("/items"), "")
	for i := 0; i < 3; i++ {
		_, err := f.svc.Sync(ctx, "acct")
		require.NoError(t, err)
	}

	stats, err := f.svc.Stats(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalBatches)
	assert.Equal(t, 6, stats.TotalRecords)
	assert.Equal(t, "connected", stats.APIStatus)
	assert.NotNil(t, stats.LastSync)

	page, err := f.svc.ListBatches(ctx, "acct", models.BatchQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	today := time.Now().UTC()
	days, err := f.svc.Calendar(ctx, "acct", today.AddDate(0, 0, -1), today)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, today.Format("2006-01-02"), days[0].Date)
	assert.Equal(t, 3, days[0].Syncs)
	assert.Equal(t, 6, days[0].Records)
	assert.Equal(t, 3, days[0].BySource[models.SourceGeneric])

	fields, err := f.svc.DistinctFields(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "meta"}, fields)

	empty, err := f.svc.Stats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "disconnected", empty.APIStatus)
	assert.Zero(t, empty.TotalBatches)
}

func TestCollectReport(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "acct", f.url("/items"), "")
	_, err := f.svc.Sync(context.Background(), "acct")
	require.NoError(t, err)

	r, err := f.svc.CollectReport(context.Background(), "acct", 7)

	require.NoError(t, err)
	assert.Len(t, r.Batches, 1)
	assert.Equal(t, 2, r.TotalRecords)
}

func TestRunScheduledSyncs(t *testing.T) {
	f := newFixture(t)
	f.configure(t, "a", f.url("/items"), "")
	f.configure(t, "b", f.url("/missing"), "")
	f.configure(t, "c", f.url("/files/data.xlsx"), "")
	require.True(t, f.svc.acquire("c"))
	defer f.svc.release("c")

	ok := f.svc.RunScheduledSyncs(context.Background())

	assert.Equal(t, 1, ok)
	stored, _ := f.store.ListBatches(context.Background(), "a", models.BatchQuery{})
	assert.Len(t, stored, 1)
}

func TestStartSchedulerDisabled(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		f.svc.StartScheduler(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero interval should return immediately")
	}
}

func TestStartSchedulerStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.StartScheduler(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestSurveyClientUsesURLHost(t *testing.T) {
	f := newFixture(t)

	client := f.svc.surveyClient(models.SourceConfig{URL: f.surveyURL("/api/v2/assets/ABC/data/"), Token: "kobo"})
	forms, err := client.ListForms(context.Background())

	require.NoError(t, err)
	assert.Len(t, forms, 1)
	assert.Equal(t, models.SourceGeneric, f.svc.Classifier().Classify(f.url("/api/v2/assets/")))
}

func TestListBatchesSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		name := fmt.Sprintf("row-%d", i)
		if i%10 == 0 {
			name = fmt.Sprintf("Needle-%d", i)
		}
		require.NoError(t, f.store.InsertBatch(ctx, &models.SyncBatch{
			ID:          fmt.Sprintf("b%03d", i),
			AccountID:   "acct",
			Data:        []any{map[string]any{"name": name}},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			RecordCount: 1,
		}))
	}

	hits, err := f.svc.ListBatches(ctx, "acct", models.BatchQuery{Limit: MaxPageSize, Search: "nEEdle"})
	require.NoError(t, err)
	require.Len(t, hits, 15)
	assert.Equal(t, "b140", hits[0].ID)
	assert.Equal(t, "b000", hits[14].ID)

	first, err := f.svc.ListBatches(ctx, "acct", models.BatchQuery{Limit: 2, Search: "needle"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	before := first[1].CreatedAt
	next, err := f.svc.ListBatches(ctx, "acct", models.BatchQuery{Limit: 2, Before: &before, Search: "needle"})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, []string{"b120", "b110"}, []string{next[0].ID, next[1].ID})

	none, err := f.svc.ListBatches(ctx, "acct", models.BatchQuery{Search: "absent"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
