package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datasync-service/internal/email"
	"datasync-service/internal/middleware"
	"datasync-service/internal/pipeline"
	"datasync-service/internal/sse"
	"datasync-service/internal/store"
	datasync "datasync-service/internal/sync"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	keys []string
}

func (p *fakePublisher) PublishReport(_ context.Context, accountID, ext string, content []byte, _ string) (string, error) {
	key := "reports/" + accountID + "/r." + ext
	p.keys = append(p.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type fakeMailer struct {
	queued []email.ReportEmail
}

func (m *fakeMailer) QueueReport(req email.ReportEmail) error {
	m.queued = append(m.queued, req)
	return nil
}

type apiFixture struct {
	app       *fiber.App
	store     *store.MemoryStore
	source    *httptest.Server
	publisher *fakePublisher
	mailer    *fakeMailer
}

func newAPI(t *testing.T, withDelivery bool) *apiFixture {
	t.Helper()
	source := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/items" {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"__id__":1,"name":"a"},{"__id__":2,"name":"b"}]`))
	}))
	t.Cleanup(source.Close)

	st := store.NewMemoryStore()
	svc := datasync.NewService(st, nethttp.DefaultClient, sse.NewBroker(), nil, datasync.Options{
		Limits: pipeline.DefaultLimits(),
	})
	f := &apiFixture{source: source, store: st}
	var h *Handler
	if withDelivery {
		f.publisher = &fakePublisher{}
		f.mailer = &fakeMailer{}
		h = NewHandler(svc, sse.NewBroker(), f.publisher, f.mailer)
	} else {
		h = NewHandler(svc, sse.NewBroker(), nil, nil)
	}

	f.app = fiber.New()
	h.Register(f.app.Group("/v2", middleware.GatewayAuth()))
	h.RegisterService(f.app.Group("/svc/v1", middleware.ServiceAuth("svc-token")))
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*nethttp.Response, map[string]interface{}) {
	t.Helper()
	return f.doAs(t, "acct-1", method, path, body)
}

func (f *apiFixture) doAs(t *testing.T, account, method, path, body string) (*nethttp.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-ID", account)
	req.Header.Set("X-Device-ID", "dev-1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (f *apiFixture) saveSource(t *testing.T, path string) {
	t.Helper()
	resp, _ := f.do(t, "PUT", "/v2/config", `{"url":"`+f.source.URL+path+`","token":"secret-token"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestConfigRoundTrip(t *testing.T) {
	f := newAPI(t, false)
	f.saveSource(t, "/items")

	resp, body := f.do(t, "GET", "/v2/config", "")

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, f.source.URL+"/items", body["url"])
	assert.Equal(t, "generic", body["api_type"])
	assert.Equal(t, true, body["has_token"])
	assert.Equal(t, "****oken", body["token"])
}

func TestSaveConfigRejectsInvalidURL(t *testing.T) {
	f := newAPI(t, false)

	resp, body := f.do(t, "PUT", "/v2/config", `{"url":"ftp://example.com/x"}`)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "url", body["field"])
}

func TestSyncEndpoint(t *testing.T) {
	f := newAPI(t, false)

	resp, _ := f.do(t, "POST", "/v2/sync", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	f.saveSource(t, "/items")
	resp, body := f.do(t, "POST", "/v2/sync", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	batch := body["batch"].(map[string]interface{})
	assert.Equal(t, float64(2), batch["record_count"])
	assert.Equal(t, "generic", batch["api_type"])

	resp, body = f.do(t, "GET", "/v2/batches?limit=5", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
	assert.NotEmpty(t, body["next_before"])

	resp, body = f.do(t, "GET", "/v2/stats", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["total_records"])

	resp, body = f.do(t, "GET", "/v2/fields", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{"id", "name"}, body["fields"])

	resp, body = f.do(t, "GET", "/v2/calendar", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["days"], 1)
}

func TestSyncEndpointUpstreamFailure(t *testing.T) {
	f := newAPI(t, false)
	f.saveSource(t, "/missing")

	resp, body := f.do(t, "POST", "/v2/sync", "")

	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body["error"], "404")
}

func TestTestConnectionEndpoint(t *testing.T) {
	f := newAPI(t, false)

	resp, body := f.do(t, "POST", "/v2/config/test", `{"url":"`+f.source.URL+`/items"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["sample"], 2)

	resp, body = f.do(t, "POST", "/v2/config/test", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestBadQueryParameters(t *testing.T) {
	f := newAPI(t, false)

	resp, _ := f.do(t, "GET", "/v2/batches?before=yesterday", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/v2/calendar?from=2026-13-01", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/v2/calendar?from=2026-10-10&to=2026-10-01", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/v2/reports/export?format=docx", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExportReport(t *testing.T) {
	f := newAPI(t, false)
	f.saveSource(t, "/items")
	f.do(t, "POST", "/v2/sync", "")

	req := httptest.NewRequest("GET", "/v2/reports/export?format=csv&period_days=7", nil)
	req.Header.Set("X-User-ID", "acct-1")
	req.Header.Set("X-Device-ID", "dev-1")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "datasync-report-")
	raw, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Type,Records,Source,Status", lines[0])

	resp, body := f.do(t, "GET", "/v2/reports/estimate?details=true", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.502, body["estimated_mb"], 1e-9)
}

func TestDeliveryRoutesDisabled(t *testing.T) {
	f := newAPI(t, false)

	resp, _ := f.do(t, "POST", "/v2/reports/publish", `{"format":"csv"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = f.do(t, "POST", "/v2/reports/email", `{"to":"ops@example.com"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestPublishAndEmailReport(t *testing.T) {
	f := newAPI(t, true)
	f.saveSource(t, "/items")
	f.do(t, "POST", "/v2/sync", "")

	resp, body := f.do(t, "POST", "/v2/reports/publish", `{"format":"xlsx","period_days":7}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "https://cdn.example.com/reports/acct-1/r.xlsx", body["url"])

	resp, _ = f.do(t, "POST", "/v2/reports/email", `{"to":"bad"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "POST", "/v2/reports/email", `{"to":"ops@example.com","format":"pdf","details":true,"attach_link":true}`)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	require.Len(t, f.mailer.queued, 1)
	sent := f.mailer.queued[0]
	assert.Equal(t, "acct-1", sent.AccountID)
	assert.Equal(t, "pdf", sent.Format)
	assert.Equal(t, 1, sent.TotalSyncs)
	assert.Equal(t, "https://cdn.example.com/reports/acct-1/r.pdf", sent.DownloadURL)
	assert.Equal(t, "application/pdf", sent.Attachment.ContentType)
	assert.NotEmpty(t, sent.Attachment.Content)
}

func TestServiceSync(t *testing.T) {
	f := newAPI(t, false)
	f.saveSource(t, "/items")

	req := httptest.NewRequest("POST", "/svc/v1/sync/acct-1", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("POST", "/svc/v1/sync/acct-1", nil)
	req.Header.Set("X-Service-Token", "svc-token")
	resp, err = f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGatewayHeadersRequired(t *testing.T) {
	f := newAPI(t, false)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/v2/stats", nil), -1)

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.Equal(t, "****6789", maskSecret("123456789"))
}

func TestAccountsStayIsolated(t *testing.T) {
	f := newAPI(t, false)

	resp, _ := f.doAs(t, "acct-AAAA", "PUT", "/v2/config", `{"url":"`+f.source.URL+`/items"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = f.doAs(t, "acct-ZZZZ", "GET", "/v2/stats", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	ids, err := f.store.ListSyncableAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acct-AAAA"}, ids)

	settings, err := f.store.GetSettings(context.Background(), "acct-AAAA")
	require.NoError(t, err)
	assert.Equal(t, f.source.URL+"/items", settings.Source.URL)

	resp, body := f.doAs(t, "acct-ZZZZ", "GET", "/v2/config", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "", body["url"])
}

func TestSaveConfigWithoutNotifyTokenKeepsIt(t *testing.T) {
	f := newAPI(t, false)

	resp, _ := f.do(t, "PUT", "/v2/config", `{"url":"`+f.source.URL+`/items","notify_token":"device-token"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, "PUT", "/v2/config", `{"url":"`+f.source.URL+`/items","token":"new"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	settings, err := f.store.GetSettings(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "new", settings.Source.Token)
	assert.Equal(t, "device-token", settings.NotifyToken)
}

func TestListBatchesSearch(t *testing.T) {
	f := newAPI(t, false)
	f.saveSource(t, "/items")
	resp, _ := f.do(t, "POST", "/v2/sync", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := f.do(t, "GET", "/v2/batches?q=NAME", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, body = f.do(t, "GET", "/v2/batches?q=nothing-like-this", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["count"])
	assert.Nil(t, body["next_before"])
}
