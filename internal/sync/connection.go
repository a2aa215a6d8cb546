// internal/sync/connection.go
package sync

import (
	"context"
	"fmt"
	"strings"

	"datasync-service/internal/pipeline"
	"datasync-service/internal/source"
	"datasync-service/pkg/models"
)

const sampleSize = 3

// TestConnection reaches the source without persisting anything. When cfg is
// nil the stored configuration of the account is tested. Failures are
// reported in the result, not as an error.
func (s *Service) TestConnection(ctx context.Context, accountID string, cfg *models.SourceConfig) (*models.ConnectionResult, error) {
	if cfg == nil {
		settings, err := s.GetConfig(ctx, accountID)
		if err != nil {
			return nil, err
		}
		cfg = &settings.Source
	}
	cfg.URL = strings.TrimSpace(cfg.URL)

	if err := source.ValidateURL(cfg.URL); err != nil {
		return &models.ConnectionResult{
			Success: false,
			Message: "invalid URL, check the URL format",
		}, nil
	}

	sourceType := s.classifier.Classify(cfg.URL)
	result := &models.ConnectionResult{SourceType: sourceType}

	switch sourceType {
	case models.SourceExcel:
		res, sample, err := s.excel.Validate(ctx, cfg.URL, cfg.Token)
		if err != nil {
			result.Message = err.Error()
			return result, nil
		}
		result.Success = true
		result.Sample = sample
		result.Message = fmt.Sprintf("valid Excel file: %d data row(s) found in sheet %q", res.TotalRows, res.SheetNames[0])

	case models.SourceSurvey:
		client := s.surveyClient(*cfg)
		if s.classifier.IsSurveyDataEndpoint(cfg.URL) {
			body, err := client.FetchBody(ctx, cfg.URL)
			if err != nil {
				result.Message = err.Error()
				return result, nil
			}
			result.Success = true
			result.Sample = firstRows(pipeline.Normalize(body, cfg.URL))
			result.Message = "connection succeeded: form data is reachable"
			return result, nil
		}
		forms, err := client.ListForms(ctx)
		if err != nil {
			result.Message = err.Error()
			return result, nil
		}
		result.Success = true
		result.Message = fmt.Sprintf("connection succeeded: %d form(s) found", len(forms))

	default:
		res, err := s.fetcher.Request(ctx, cfg.URL, cfg.Token)
		if err != nil {
			result.Message = err.Error()
			return result, nil
		}
		result.Success = true
		result.UsedProxy = res.UsedProxy
		result.Sample = firstRows(pipeline.Normalize(res.Body, cfg.URL))
		result.Message = "connection succeeded: the endpoint returns valid JSON"
		if res.UsedProxy {
			result.Message += " (via relay proxy)"
		}
	}
	return result, nil
}

func firstRows(rows []any) []any {
	if len(rows) > sampleSize {
		rows = rows[:sampleSize]
	}
	return pipeline.SanitizeRows(rows)
}
