// internal/store/firestore.go
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"datasync-service/pkg/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type settingsDoc struct {
	APIURL      string     `firestore:"apiUrl"`
	APIToken    string     `firestore:"apiToken"`
	NotifyToken string     `firestore:"notifyToken"`
	LastSync    *time.Time `firestore:"lastSync"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

// FirestoreStore keeps batches in api_data and settings in user_settings,
// the collections the dashboard reads.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(ctx context.Context, app *firebase.App) (*FirestoreStore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client init failed: %w", err)
	}
	log.Println("✅ [STORE] Firestore client initialized")
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) GetSettings(ctx context.Context, accountID string) (*models.AccountSettings, error) {
	snap, err := s.client.Collection(SettingsCollection).Doc(accountID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &models.AccountSettings{AccountID: accountID}, nil
		}
		return nil, fmt.Errorf("get settings %s: %w", accountID, err)
	}

	var doc settingsDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", accountID, err)
	}
	return &models.AccountSettings{
		AccountID:   accountID,
		Source:      models.SourceConfig{URL: doc.APIURL, Token: doc.APIToken},
		NotifyToken: doc.NotifyToken,
		LastSyncAt:  doc.LastSync,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

func (s *FirestoreStore) SaveSource(ctx context.Context, accountID string, cfg models.SourceConfig, notifyToken *string) error {
	fields := map[string]interface{}{
		"apiUrl":    cfg.URL,
		"apiToken":  cfg.Token,
		"updatedAt": time.Now().UTC(),
	}
	if notifyToken != nil {
		fields["notifyToken"] = *notifyToken
	}
	_, err := s.client.Collection(SettingsCollection).Doc(accountID).Set(ctx, fields, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", accountID, err)
	}
	return nil
}

func (s *FirestoreStore) SetLastSync(ctx context.Context, accountID string, at time.Time) error {
	_, err := s.client.Collection(SettingsCollection).Doc(accountID).Set(ctx, map[string]interface{}{
		"lastSync": at,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set last sync %s: %w", accountID, err)
	}
	return nil
}

func (s *FirestoreStore) InsertBatch(ctx context.Context, batch *models.SyncBatch) error {
	if _, err := s.client.Collection(BatchesCollection).Doc(batch.ID).Set(ctx, batch); err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}
	return nil
}

func (s *FirestoreStore) ListBatches(ctx context.Context, accountID string, q models.BatchQuery) ([]models.SyncBatch, error) {
	query := s.client.Collection(BatchesCollection).Where("userId", "==", accountID)
	if q.Before != nil {
		query = query.Where("createdAt", "<", *q.Before)
	}
	if q.Since != nil {
		query = query.Where("createdAt", ">=", *q.Since)
	}
	query = query.OrderBy("createdAt", firestore.Desc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list batches %s: %w", accountID, err)
	}

	batches := make([]models.SyncBatch, 0, len(docs))
	for _, doc := range docs {
		var b models.SyncBatch
		if err := doc.DataTo(&b); err != nil {
			log.Printf("⚠️ [STORE] Skipping undecodable batch %s: %v", doc.Ref.ID, err)
			continue
		}
		b.ID = doc.Ref.ID
		batches = append(batches, b)
	}
	return batches, nil
}

func (s *FirestoreStore) ListSyncableAccounts(ctx context.Context) ([]string, error) {
	docs, err := s.client.Collection(SettingsCollection).Where("apiUrl", "!=", "").Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list syncable accounts: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.Ref.ID)
	}
	return ids, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
