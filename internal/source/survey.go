// internal/source/survey.go
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"datasync-service/internal/syncerr"
	"datasync-service/pkg/models"
)

const DefaultSurveyBaseURL = "https://kf.kobotoolbox.org/api/v2"

// SurveyClient talks to the KoBoToolbox v2 REST API. It never retries.
type SurveyClient struct {
	baseURL string
	token   string
	client  HTTPDoer
}

func NewSurveyClient(baseURL, token string, client HTTPDoer) *SurveyClient {
	if baseURL == "" {
		baseURL = DefaultSurveyBaseURL
	}
	return &SurveyClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// FormData is the submissions of one form, as collected by FetchAll.
type FormData struct {
	FormName string `json:"form_name"`
	UID      string `json:"uid"`
	Data     []any  `json:"data"`
	Count    int    `json:"count"`
}

// ListForms returns deployed survey assets only.
func (s *SurveyClient) ListForms(ctx context.Context) ([]models.SurveyForm, error) {
	raw, err := s.get(ctx, s.baseURL+"/assets/")
	if err != nil {
		return nil, err
	}

	var page struct {
		Results []models.SurveyForm `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, &syncerr.ProtocolError{Message: "unexpected asset list format"}
	}

	forms := make([]models.SurveyForm, 0, len(page.Results))
	for _, f := range page.Results {
		if f.AssetType == "survey" && f.Active {
			forms = append(forms, f)
		}
	}
	log.Printf("✅ [SURVEY] %d active forms found", len(forms))
	return forms, nil
}

// FetchSubmissions accepts both the paginated envelope and a bare array.
func (s *SurveyClient) FetchSubmissions(ctx context.Context, formID string) ([]any, error) {
	if formID == "" {
		return nil, &syncerr.NotFoundError{Message: "survey form id is empty"}
	}
	dataURL := fmt.Sprintf("%s/assets/%s/data/", s.baseURL, formID)
	body, err := s.FetchBody(ctx, dataURL)
	if err != nil {
		return nil, err
	}
	switch v := body.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if results, ok := v["results"].([]any); ok {
			return results, nil
		}
	}
	log.Printf("⚠️ [SURVEY] Unexpected data structure from %s", dataURL)
	return []any{}, nil
}

// FetchBody reads any survey endpoint given as a full URL and returns the decoded JSON.
func (s *SurveyClient) FetchBody(ctx context.Context, rawURL string) (any, error) {
	raw, err := s.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &syncerr.ProtocolError{Message: "survey response is not valid JSON"}
	}
	return body, nil
}

// FetchAll collects every active form's submissions, truncated to maxPerForm.
// A form that fails is skipped.
func (s *SurveyClient) FetchAll(ctx context.Context, maxPerForm int) ([]FormData, error) {
	forms, err := s.ListForms(ctx)
	if err != nil {
		return nil, err
	}
	if len(forms) == 0 {
		return nil, &syncerr.NotFoundError{Message: "no active form found in this KoBoToolbox account"}
	}

	all := make([]FormData, 0, len(forms))
	for _, form := range forms {
		rows, err := s.FetchSubmissions(ctx, form.UID)
		if err != nil {
			log.Printf("⚠️ [SURVEY] Skipping form %q (%s): %v", form.Name, form.UID, err)
			continue
		}
		count := form.SubmissionCount
		if count == 0 {
			count = len(rows)
		}
		if maxPerForm > 0 && len(rows) > maxPerForm {
			rows = rows[:maxPerForm]
		}
		all = append(all, FormData{FormName: form.Name, UID: form.UID, Data: rows, Count: count})
	}
	return all, nil
}

func (s *SurveyClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &syncerr.ConfigError{Field: "url", Reason: err.Error()}
	}
	req.Header.Set("Authorization", "Token "+s.token)
	req.Header.Set("Accept", "application/json")

	log.Printf("🌐 [SURVEY] GET %s", url)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &syncerr.UnreachableError{URL: url, Direct: &syncerr.TransportError{URL: url, Err: err}}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &syncerr.AuthError{Message: "invalid KoBoToolbox token, check your authentication token"}
	case resp.StatusCode == http.StatusForbidden:
		return nil, &syncerr.PermissionError{Message: "access forbidden, check your permissions on this KoBoToolbox resource"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &syncerr.NotFoundError{Message: "KoBoToolbox resource not found, check the URL or the form UID"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &syncerr.ProtocolError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "json") {
		return nil, &syncerr.ProtocolError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected content type %q", ct)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &syncerr.TransportError{URL: url, Err: err}
	}
	return raw, nil
}
