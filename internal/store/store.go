// internal/store/store.go
package store

import (
	"context"
	"time"

	"datasync-service/pkg/models"
)

// Collection names shared by every backend.
const (
	BatchesCollection  = "api_data"
	SettingsCollection = "user_settings"
)

// Store persists account settings and append-only sync batches. All data
// is scoped by account id.
type Store interface {
	// GetSettings returns empty settings, not an error, for an unknown account.
	GetSettings(ctx context.Context, accountID string) (*models.AccountSettings, error)
	// SaveSource leaves the stored notify token untouched when notifyToken is nil.
	SaveSource(ctx context.Context, accountID string, cfg models.SourceConfig, notifyToken *string) error
	SetLastSync(ctx context.Context, accountID string, at time.Time) error
	InsertBatch(ctx context.Context, batch *models.SyncBatch) error
	// ListBatches returns batches newest first.
	ListBatches(ctx context.Context, accountID string, q models.BatchQuery) ([]models.SyncBatch, error)
	// ListSyncableAccounts returns the ids of accounts that have a source URL.
	ListSyncableAccounts(ctx context.Context) ([]string, error)
	Close() error
}
