// internal/pipeline/writer.go
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"datasync-service/internal/syncerr"
	"datasync-service/pkg/models"

	"github.com/google/uuid"
)

// BatchWriter is the part of the store the writer needs.
type BatchWriter interface {
	InsertBatch(ctx context.Context, batch *models.SyncBatch) error
	SetLastSync(ctx context.Context, accountID string, at time.Time) error
}

// Limits bounds the number of rows kept per batch, by source type.
type Limits struct {
	Generic int
	Survey  int
	Excel   int
}

func DefaultLimits() Limits {
	return Limits{Generic: 100, Survey: 100, Excel: 1000}
}

func (l Limits) For(t models.SourceType) int {
	switch t {
	case models.SourceExcel:
		return l.Excel
	case models.SourceSurvey:
		return l.Survey
	default:
		return l.Generic
	}
}

type Writer struct {
	store  BatchWriter
	limits Limits
	now    func() time.Time
}

func NewWriter(store BatchWriter, limits Limits) *Writer {
	return &Writer{store: store, limits: limits, now: time.Now}
}

// Commit stores rows as one batch and then moves the account's last-sync
// marker. The two writes are not atomic: if the second fails the batch is
// already visible and the marker stays stale.
func (w *Writer) Commit(ctx context.Context, rows []any, meta models.SyncMeta) (*models.SyncBatch, error) {
	if limit := w.limits.For(meta.SourceType); limit > 0 && len(rows) > limit {
		log.Printf("✂️ [WRITER] Truncating %d rows to %d for %s source", len(rows), limit, meta.SourceType)
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []any{}
	}

	now := w.now().UTC()
	batch := &models.SyncBatch{
		ID:          fmt.Sprintf("sync_%d_%s", now.UnixMilli(), uuid.NewString()[:8]),
		AccountID:   meta.AccountID,
		Data:        rows,
		CreatedAt:   now,
		SourceURL:   meta.SourceURL,
		RecordCount: len(rows),
		SourceType:  meta.SourceType,
	}

	if err := w.store.InsertBatch(ctx, batch); err != nil {
		return nil, &syncerr.PersistenceError{Op: "insert batch", Err: err}
	}
	if err := w.store.SetLastSync(ctx, meta.AccountID, now); err != nil {
		return nil, &syncerr.PersistenceError{Op: "update last sync", Err: err}
	}

	log.Printf("💾 [WRITER] Batch %s stored: %d records (%s) for account %s", batch.ID, batch.RecordCount, batch.SourceType, meta.AccountID)
	return batch, nil
}
