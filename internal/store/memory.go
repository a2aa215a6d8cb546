// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"datasync-service/pkg/models"
)

// MemoryStore is a process-local Store for local runs (STORE_BACKEND=memory) and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]models.AccountSettings
	batches  []models.SyncBatch

	// FailInsert and FailLastSync inject write failures.
	FailInsert   error
	FailLastSync error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[string]models.AccountSettings)}
}

func (m *MemoryStore) GetSettings(_ context.Context, accountID string) (*models.AccountSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[accountID]
	if !ok {
		return &models.AccountSettings{AccountID: accountID}, nil
	}
	return &s, nil
}

func (m *MemoryStore) SaveSource(_ context.Context, accountID string, cfg models.SourceConfig, notifyToken *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settings[accountID]
	s.AccountID = accountID
	s.Source = cfg
	if notifyToken != nil {
		s.NotifyToken = *notifyToken
	}
	s.UpdatedAt = time.Now().UTC()
	m.settings[accountID] = s
	return nil
}

func (m *MemoryStore) SetLastSync(_ context.Context, accountID string, at time.Time) error {
	if m.FailLastSync != nil {
		return m.FailLastSync
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settings[accountID]
	s.AccountID = accountID
	s.LastSyncAt = &at
	m.settings[accountID] = s
	return nil
}

func (m *MemoryStore) InsertBatch(_ context.Context, batch *models.SyncBatch) error {
	if m.FailInsert != nil {
		return m.FailInsert
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, *batch)
	return nil
}

func (m *MemoryStore) ListBatches(_ context.Context, accountID string, q models.BatchQuery) ([]models.SyncBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SyncBatch, 0)
	for _, b := range m.batches {
		if b.AccountID != accountID {
			continue
		}
		if q.Before != nil && !b.CreatedAt.Before(*q.Before) {
			continue
		}
		if q.Since != nil && b.CreatedAt.Before(*q.Since) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListSyncableAccounts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.settings))
	for id, s := range m.settings {
		if s.Source.URL != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) Close() error { return nil }
