// internal/sync/queries.go
package sync

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"datasync-service/internal/report"
	"datasync-service/internal/syncerr"
	"datasync-service/pkg/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// fieldScanBatches bounds how many recent batches DistinctFields reads.
	fieldScanBatches = 20
	// searchScanBatches bounds how many batches one search request reads.
	searchScanBatches = 1000
	dayLayout        = "2006-01-02"
)

// ListBatches pages through an account's batches, newest first. With
// q.Search set only batches whose rows contain the text are returned.
func (s *Service) ListBatches(ctx context.Context, accountID string, q models.BatchQuery) ([]models.SyncBatch, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	if needle == "" {
		batches, err := s.store.ListBatches(ctx, accountID, q)
		if err != nil {
			return nil, &syncerr.PersistenceError{Op: "list batches", Err: err}
		}
		return batches, nil
	}

	out := make([]models.SyncBatch, 0, q.Limit)
	cursor := q.Before
	for scanned := 0; scanned < searchScanBatches && len(out) < q.Limit; {
		page, err := s.store.ListBatches(ctx, accountID, models.BatchQuery{Limit: MaxPageSize, Before: cursor, Since: q.Since})
		if err != nil {
			return nil, &syncerr.PersistenceError{Op: "list batches", Err: err}
		}
		for _, b := range page {
			if len(out) == q.Limit {
				break
			}
			if batchContains(b, needle) {
				out = append(out, b)
			}
		}
		scanned += len(page)
		if len(page) < MaxPageSize {
			break
		}
		last := page[len(page)-1].CreatedAt
		cursor = &last
	}
	return out, nil
}

// batchContains matches needle (lower case) against the JSON of the rows.
func batchContains(b models.SyncBatch, needle string) bool {
	raw, err := json.Marshal(b.Data)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(raw)), needle)
}

// Stats summarizes what the account has stored.
func (s *Service) Stats(ctx context.Context, accountID string) (*models.Stats, error) {
	settings, err := s.GetConfig(ctx, accountID)
	if err != nil {
		return nil, err
	}
	batches, err := s.store.ListBatches(ctx, accountID, models.BatchQuery{})
	if err != nil {
		return nil, &syncerr.PersistenceError{Op: "list batches", Err: err}
	}

	stats := &models.Stats{
		TotalBatches: len(batches),
		LastSync:     settings.LastSyncAt,
		APIStatus:    "disconnected",
	}
	for _, b := range batches {
		stats.TotalRecords += b.RecordCount
	}
	if settings.Source.URL != "" {
		stats.APIStatus = "connected"
	}
	return stats, nil
}

// Calendar groups the syncs between from and to (inclusive, UTC days) per day.
func (s *Service) Calendar(ctx context.Context, accountID string, from, to time.Time) ([]models.DayActivity, error) {
	from = truncateDay(from)
	end := truncateDay(to).AddDate(0, 0, 1)
	batches, err := s.store.ListBatches(ctx, accountID, models.BatchQuery{Since: &from, Before: &end})
	if err != nil {
		return nil, &syncerr.PersistenceError{Op: "list batches", Err: err}
	}

	days := make(map[string]*models.DayActivity)
	for _, b := range batches {
		key := b.CreatedAt.UTC().Format(dayLayout)
		day, ok := days[key]
		if !ok {
			day = &models.DayActivity{Date: key, BySource: make(map[models.SourceType]int)}
			days[key] = day
		}
		day.Syncs++
		day.Records += b.RecordCount
		day.BySource[b.SourceType]++
	}

	out := make([]models.DayActivity, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// DistinctFields lists the field names found in the account's recent rows.
func (s *Service) DistinctFields(ctx context.Context, accountID string) ([]string, error) {
	batches, err := s.store.ListBatches(ctx, accountID, models.BatchQuery{Limit: fieldScanBatches})
	if err != nil {
		return nil, &syncerr.PersistenceError{Op: "list batches", Err: err}
	}
	seen := make(map[string]bool)
	for _, b := range batches {
		for _, row := range b.Data {
			if obj, ok := row.(map[string]any); ok {
				for k := range obj {
					seen[k] = true
				}
			}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CollectReport gathers the batches of the last periodDays days for export.
func (s *Service) CollectReport(ctx context.Context, accountID string, periodDays int) (*report.Report, error) {
	r, err := report.Collect(ctx, s.store, accountID, periodDays, time.Now())
	if err != nil {
		return nil, &syncerr.PersistenceError{Op: "collect report", Err: err}
	}
	return r, nil
}
