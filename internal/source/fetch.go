// internal/source/fetch.go
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"datasync-service/internal/syncerr"
)

const (
	DefaultProxyBase   = "https://api.allorigins.win/get"
	DefaultMaxBodySize = 50 << 20
)

// HTTPDoer is the part of *http.Client the adapters use.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the client shared by all adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// FetchResult is a decoded JSON body, or the raw string when a relayed body was not JSON.
type FetchResult struct {
	Body      any
	UsedProxy bool
}

// Fetcher performs a direct GET and, on a transport failure only, retries
// the same request through a read-only relay proxy.
type Fetcher struct {
	client      HTTPDoer
	classifier  *Classifier
	proxyBase   string
	maxBodySize int64
}

func NewFetcher(client HTTPDoer, classifier *Classifier, proxyBase string, maxBodySize int64) *Fetcher {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Fetcher{
		client:      client,
		classifier:  classifier,
		proxyBase:   proxyBase,
		maxBodySize: maxBodySize,
	}
}

func (f *Fetcher) Request(ctx context.Context, rawURL, token string) (*FetchResult, error) {
	body, err := f.direct(ctx, rawURL, token)
	if err == nil {
		return checkBody(&FetchResult{Body: body})
	}

	var trErr *syncerr.TransportError
	if !errors.As(err, &trErr) || ctx.Err() != nil || f.proxyBase == "" {
		return nil, err
	}

	log.Printf("⚠️ [FETCH] Direct request to %s failed (%v), retrying through relay proxy", rawURL, trErr.Err)
	body, proxyErr := f.viaProxy(ctx, rawURL)
	if proxyErr != nil {
		log.Printf("❌ [FETCH] Relay proxy failed for %s: %v", rawURL, proxyErr)
		return nil, &syncerr.UnreachableError{URL: rawURL, Direct: err, Proxy: proxyErr}
	}
	log.Printf("✅ [FETCH] %s reached through relay proxy", rawURL)
	return checkBody(&FetchResult{Body: body, UsedProxy: true})
}

func checkBody(res *FetchResult) (*FetchResult, error) {
	if res.Body == nil {
		return nil, &syncerr.FormatError{Message: "the API returned empty data"}
	}
	return res, nil
}

func (f *Fetcher) direct(ctx context.Context, rawURL, token string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &syncerr.ConfigError{Field: "url", Reason: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if auth := f.classifier.AuthorizationHeader(rawURL, token); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &syncerr.TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &syncerr.ProtocolError{
			StatusCode: resp.StatusCode,
			Message:    syncerr.StatusMessage(resp.StatusCode, f.classifier.IsSurveyHost(rawURL)),
		}
	}
	if isHTML(resp.Header.Get("Content-Type")) {
		return nil, &syncerr.FormatError{Message: "the URL points to a web page (HTML), not an API endpoint returning JSON"}
	}

	raw, err := readLimited(resp.Body, f.maxBodySize)
	if err != nil {
		return nil, err
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &syncerr.ProtocolError{Message: "the API response is not valid JSON"}
	}
	return body, nil
}

type relayEnvelope struct {
	Contents *string `json:"contents"`
}

func (f *Fetcher) viaProxy(ctx context.Context, target string) (any, error) {
	proxyURL := ProxyURL(f.proxyBase, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &syncerr.TransportError{URL: proxyURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &syncerr.ProtocolError{StatusCode: resp.StatusCode, Message: "relay proxy error"}
	}

	raw, err := readLimited(resp.Body, f.maxBodySize)
	if err != nil {
		return nil, err
	}
	var env relayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &syncerr.ProtocolError{Message: "relay proxy response is not valid JSON"}
	}
	if env.Contents == nil {
		return nil, &syncerr.ProtocolError{Message: "relay proxy response has no contents"}
	}

	var body any
	if err := json.Unmarshal([]byte(*env.Contents), &body); err != nil {
		return *env.Contents, nil
	}
	return body, nil
}

// ProxyURL builds <proxyBase>?url=<urlencoded target>.
func ProxyURL(proxyBase, target string) string {
	sep := "?"
	if strings.Contains(proxyBase, "?") {
		sep = "&"
	}
	return proxyBase + sep + "url=" + url.QueryEscape(target)
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, &syncerr.TransportError{Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(raw)) > max {
		return nil, &syncerr.FormatError{Message: fmt.Sprintf("response exceeds the %d byte limit", max)}
	}
	return raw, nil
}
