// pkg/models/sync_batch.go
package models

import (
	"time"
)

type SourceType string

const (
	SourceSurvey  SourceType = "survey"
	SourceExcel   SourceType = "excel"
	SourceGeneric SourceType = "generic"
)

// SyncBatch is one append-only snapshot written by a single sync.
type SyncBatch struct {
	ID          string     `json:"id" firestore:"-"`
	AccountID   string     `json:"user_id" firestore:"userId"`
	Data        []any      `json:"data" firestore:"data"`
	CreatedAt   time.Time  `json:"created_at" firestore:"createdAt"`
	SourceURL   string     `json:"source" firestore:"source"`
	RecordCount int        `json:"record_count" firestore:"recordCount"`
	SourceType  SourceType `json:"api_type" firestore:"apiType"`
}

// SyncMeta describes where a batch came from.
type SyncMeta struct {
	AccountID  string
	SourceURL  string
	SourceType SourceType
}

// BatchQuery pages through batches newest first. Search is a
// case-insensitive substring over the batch rows; the sync service applies
// it and stores ignore it.
type BatchQuery struct {
	Limit  int
	Before *time.Time
	Since  *time.Time
	Search string
}

// Stats is the dashboard summary of an account.
type Stats struct {
	TotalBatches int        `json:"total_batches"`
	TotalRecords int        `json:"total_records"`
	LastSync     *time.Time `json:"last_sync"`
	APIStatus    string     `json:"api_status"`
}

// DayActivity aggregates the syncs of one calendar day.
type DayActivity struct {
	Date     string             `json:"date"`
	Syncs    int                `json:"syncs"`
	Records  int                `json:"records"`
	BySource map[SourceType]int `json:"by_source"`
}
