// internal/sync/service.go
package sync

import (
	"context"
	"fmt"
	"log"
	"strings"
	stdsync "sync"

	"datasync-service/internal/fcm"
	"datasync-service/internal/pipeline"
	"datasync-service/internal/source"
	"datasync-service/internal/sse"
	"datasync-service/internal/store"
	"datasync-service/internal/syncerr"
	"datasync-service/pkg/models"
)

// EventPublisher receives sync lifecycle events (the SSE broker in production).
type EventPublisher interface {
	Publish(event sse.Event)
}

// Notifier pushes a message to a device token (FCM in production).
type Notifier interface {
	SendToToken(ctx context.Context, token string, title, body string, data map[string]interface{}) error
}

type Options struct {
	SurveyDomain     string
	SurveyBaseURL    string
	ProxyBase        string
	MaxBodySize      int64
	SurveyMaxPerForm int
	Limits           pipeline.Limits
}

// Service runs the one sync pipeline shared by every source type:
// classify → adapter → normalize → sanitize → commit.
type Service struct {
	store      store.Store
	httpClient source.HTTPDoer
	classifier *source.Classifier
	fetcher    *source.Fetcher
	excel      *source.ExcelAdapter
	writer     *pipeline.Writer
	events     EventPublisher
	notifier   Notifier
	opts       Options

	mu      stdsync.Mutex
	running map[string]bool
}

// SyncResult is what a completed sync reports back to the caller.
type SyncResult struct {
	Batch     *models.SyncBatch `json:"batch"`
	UsedProxy bool              `json:"used_proxy"`
	Message   string            `json:"message"`
}

func NewService(st store.Store, httpClient source.HTTPDoer, events EventPublisher, notifier Notifier, opts Options) *Service {
	classifier := source.NewClassifier(opts.SurveyDomain)
	return &Service{
		store:      st,
		httpClient: httpClient,
		classifier: classifier,
		fetcher:    source.NewFetcher(httpClient, classifier, opts.ProxyBase, opts.MaxBodySize),
		excel:      source.NewExcelAdapter(httpClient, classifier, opts.MaxBodySize),
		writer:     pipeline.NewWriter(st, opts.Limits),
		events:     events,
		notifier:   notifier,
		opts:       opts,
		running:    make(map[string]bool),
	}
}

func (s *Service) Classifier() *source.Classifier {
	return s.classifier
}

// GetConfig returns the stored settings of an account.
func (s *Service) GetConfig(ctx context.Context, accountID string) (*models.AccountSettings, error) {
	settings, err := s.store.GetSettings(ctx, accountID)
	if err != nil {
		return nil, &syncerr.PersistenceError{Op: "read settings", Err: err}
	}
	return settings, nil
}

// SaveConfig validates and stores the source of an account. An empty URL is
// accepted; a non-empty one must be an absolute http(s) URL. A nil
// notifyToken keeps the push token already stored.
func (s *Service) SaveConfig(ctx context.Context, accountID string, cfg models.SourceConfig, notifyToken *string) error {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.URL != "" {
		if err := source.ValidateURL(cfg.URL); err != nil {
			return &syncerr.ConfigError{Field: "url", Reason: err.Error()}
		}
	}
	if notifyToken != nil {
		trimmed := strings.TrimSpace(*notifyToken)
		notifyToken = &trimmed
	}
	if err := s.store.SaveSource(ctx, accountID, cfg, notifyToken); err != nil {
		return &syncerr.PersistenceError{Op: "save settings", Err: err}
	}
	log.Printf("⚙️ [CONFIG] Account %s source saved (%s)", accountID, s.classifier.Classify(cfg.URL))
	return nil
}

// Sync runs one end-to-end sync for an account. A second call for the same
// account while one is running fails with ErrSyncInProgress.
func (s *Service) Sync(ctx context.Context, accountID string) (*SyncResult, error) {
	if !s.acquire(accountID) {
		return nil, syncerr.ErrSyncInProgress
	}
	defer s.release(accountID)

	settings, err := s.GetConfig(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cfg := settings.Source
	if cfg.URL == "" {
		return nil, &syncerr.ConfigError{Field: "url", Reason: "no source URL configured"}
	}
	if err := source.ValidateURL(cfg.URL); err != nil {
		return nil, &syncerr.ConfigError{Field: "url", Reason: err.Error()}
	}

	sourceType := s.classifier.Classify(cfg.URL)
	log.Printf("🔄 [SYNC] Starting %s sync for account %s from %s", sourceType, accountID, cfg.URL)
	s.publish(accountID, sse.EventSyncStarted, map[string]interface{}{
		"source":   cfg.URL,
		"api_type": sourceType,
	})

	rows, usedProxy, err := s.fetchRows(ctx, cfg, sourceType)
	if err != nil {
		s.fail(ctx, settings, err)
		return nil, err
	}
	if sourceType != models.SourceExcel {
		rows = pipeline.SanitizeRows(rows)
	}

	batch, err := s.writer.Commit(ctx, rows, models.SyncMeta{
		AccountID:  accountID,
		SourceURL:  cfg.URL,
		SourceType: sourceType,
	})
	if err != nil {
		s.fail(ctx, settings, err)
		return nil, err
	}

	msg := fmt.Sprintf("sync succeeded: %d record(s) synced", batch.RecordCount)
	if batch.RecordCount == 0 {
		msg = "sync succeeded, but no data was found"
	}
	if usedProxy {
		msg += " (via relay proxy)"
	}
	log.Printf("✅ [SYNC] Account %s: %s", accountID, msg)

	s.publish(accountID, sse.EventSyncCompleted, map[string]interface{}{
		"batch_id":     batch.ID,
		"record_count": batch.RecordCount,
		"api_type":     batch.SourceType,
		"used_proxy":   usedProxy,
		"created_at":   batch.CreatedAt,
	})
	s.notify(ctx, settings, "Sync completed", msg, map[string]interface{}{
		"batch_id":     batch.ID,
		"record_count": batch.RecordCount,
	})

	return &SyncResult{Batch: batch, UsedProxy: usedProxy, Message: msg}, nil
}

// fetchRows runs the adapter that matches sourceType and returns normalized rows.
func (s *Service) fetchRows(ctx context.Context, cfg models.SourceConfig, sourceType models.SourceType) ([]any, bool, error) {
	switch sourceType {
	case models.SourceExcel:
		res, err := s.excel.FetchAndParse(ctx, cfg.URL, cfg.Token)
		if err != nil {
			return nil, false, err
		}
		return res.Rows, false, nil

	case models.SourceSurvey:
		client := s.surveyClient(cfg)
		if s.classifier.IsSurveyDataEndpoint(cfg.URL) {
			body, err := client.FetchBody(ctx, cfg.URL)
			if err != nil {
				return nil, false, err
			}
			return pipeline.Normalize(body, cfg.URL), false, nil
		}
		forms, err := client.FetchAll(ctx, s.opts.SurveyMaxPerForm)
		if err != nil {
			return nil, false, err
		}
		var rows []any
		for _, form := range forms {
			rows = append(rows, form.Data...)
		}
		return rows, false, nil

	default:
		res, err := s.fetcher.Request(ctx, cfg.URL, cfg.Token)
		if err != nil {
			return nil, false, err
		}
		return pipeline.Normalize(res.Body, cfg.URL), res.UsedProxy, nil
	}
}

func (s *Service) surveyClient(cfg models.SourceConfig) *source.SurveyClient {
	base := s.opts.SurveyBaseURL
	if cfg.URL != "" && s.classifier.IsSurveyHost(cfg.URL) {
		base = source.SurveyBaseURL(cfg.URL)
	}
	return source.NewSurveyClient(base, cfg.Token, s.httpClient)
}

// ListForms lists the deployed survey forms reachable with the account's token.
func (s *Service) ListForms(ctx context.Context, accountID string) ([]models.SurveyForm, error) {
	settings, err := s.GetConfig(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if settings.Source.Token == "" {
		return nil, &syncerr.ConfigError{Field: "token", Reason: "a KoBoToolbox token is required to list forms"}
	}
	return s.surveyClient(settings.Source).ListForms(ctx)
}

func (s *Service) acquire(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[accountID] {
		return false
	}
	s.running[accountID] = true
	return true
}

func (s *Service) release(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, accountID)
}

func (s *Service) fail(ctx context.Context, settings *models.AccountSettings, err error) {
	log.Printf("❌ [SYNC] Account %s failed: %v", settings.AccountID, err)
	s.publish(settings.AccountID, sse.EventSyncFailed, map[string]interface{}{
		"error":  err.Error(),
		"source": settings.Source.URL,
	})
	s.notify(ctx, settings, "Sync failed", err.Error(), nil)
}

func (s *Service) publish(accountID, eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(sse.Event{Type: eventType, Data: data, AccountID: accountID})
}

func (s *Service) notify(ctx context.Context, settings *models.AccountSettings, title, body string, data map[string]interface{}) {
	if s.notifier == nil || settings.NotifyToken == "" {
		return
	}
	if err := s.notifier.SendToToken(ctx, settings.NotifyToken, title, body, data); err != nil {
		log.Printf("⚠️ [SYNC] Push to %s failed: %v", fcm.MaskToken(settings.NotifyToken), err)
	}
}
