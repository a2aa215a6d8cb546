// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"datasync-service/internal/config"
	"datasync-service/pkg/models"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type batchRecord struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(64)"`
	UserID      string         `gorm:"column:user_id;type:varchar(128);index;not null"`
	Data        datatypes.JSON `gorm:"column:data;type:jsonb"`
	CreatedAt   time.Time      `gorm:"column:created_at;index"`
	Source      string         `gorm:"column:source;type:text"`
	RecordCount int            `gorm:"column:record_count"`
	APIType     string         `gorm:"column:api_type;type:varchar(20)"`
}

func (batchRecord) TableName() string { return BatchesCollection }

type settingsRecord struct {
	UserID      string     `gorm:"column:user_id;primaryKey;type:varchar(128)"`
	APIURL      string     `gorm:"column:api_url;type:text"`
	APIToken    string     `gorm:"column:api_token;type:text"`
	NotifyToken string     `gorm:"column:notify_token;type:text"`
	LastSync    *time.Time `gorm:"column:last_sync;type:timestamptz"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (settingsRecord) TableName() string { return SettingsCollection }

type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects and auto-migrates the two tables.
func OpenPostgres(cfg *config.Config) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBSSLMode,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to DB: %w", err)
	}
	return NewPostgresStore(db)
}

func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	// Auto-migrate (safe in dev; use migrations in prod)
	if err := db.AutoMigrate(&batchRecord{}, &settingsRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("✅ [STORE] Postgres connected & migrated")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSettings(ctx context.Context, accountID string) (*models.AccountSettings, error) {
	var rec settingsRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", accountID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.AccountSettings{AccountID: accountID}, nil
		}
		return nil, fmt.Errorf("get settings %s: %w", accountID, err)
	}
	return &models.AccountSettings{
		AccountID:   accountID,
		Source:      models.SourceConfig{URL: rec.APIURL, Token: rec.APIToken},
		NotifyToken: rec.NotifyToken,
		LastSyncAt:  rec.LastSync,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func (s *PostgresStore) SaveSource(ctx context.Context, accountID string, cfg models.SourceConfig, notifyToken *string) error {
	rec := settingsRecord{
		UserID:    accountID,
		APIURL:    cfg.URL,
		APIToken:  cfg.Token,
		UpdatedAt: time.Now().UTC(),
	}
	columns := []string{"api_url", "api_token", "updated_at"}
	if notifyToken != nil {
		rec.NotifyToken = *notifyToken
		columns = append(columns, "notify_token")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save settings %s: %w", accountID, err)
	}
	return nil
}

func (s *PostgresStore) SetLastSync(ctx context.Context, accountID string, at time.Time) error {
	rec := settingsRecord{UserID: accountID, LastSync: &at, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_sync"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("set last sync %s: %w", accountID, err)
	}
	return nil
}

func (s *PostgresStore) InsertBatch(ctx context.Context, batch *models.SyncBatch) error {
	data, err := json.Marshal(batch.Data)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", batch.ID, err)
	}
	rec := batchRecord{
		ID:          batch.ID,
		UserID:      batch.AccountID,
		Data:        datatypes.JSON(data),
		CreatedAt:   batch.CreatedAt,
		Source:      batch.SourceURL,
		RecordCount: batch.RecordCount,
		APIType:     string(batch.SourceType),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, accountID string, q models.BatchQuery) ([]models.SyncBatch, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ?", accountID)
	if q.Before != nil {
		tx = tx.Where("created_at < ?", *q.Before)
	}
	if q.Since != nil {
		tx = tx.Where("created_at >= ?", *q.Since)
	}
	tx = tx.Order("created_at DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var recs []batchRecord
	if err := tx.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list batches %s: %w", accountID, err)
	}

	batches := make([]models.SyncBatch, 0, len(recs))
	for _, rec := range recs {
		var rows []any
		if len(rec.Data) > 0 {
			if err := json.Unmarshal(rec.Data, &rows); err != nil {
				log.Printf("⚠️ [STORE] Skipping undecodable batch %s: %v", rec.ID, err)
				continue
			}
		}
		batches = append(batches, models.SyncBatch{
			ID:          rec.ID,
			AccountID:   rec.UserID,
			Data:        rows,
			CreatedAt:   rec.CreatedAt,
			SourceURL:   rec.Source,
			RecordCount: rec.RecordCount,
			SourceType:  models.SourceType(rec.APIType),
		})
	}
	return batches, nil
}

func (s *PostgresStore) ListSyncableAccounts(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&settingsRecord{}).Where("api_url <> ''").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list syncable accounts: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
