// pkg/models/settings.go
package models

import (
	"time"
)

// SourceConfig is the user-supplied origin of data.
type SourceConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// AccountSettings is the per-account settings document; LastSyncAt is the
// single mutable sync marker and is overwritten on every successful sync.
type AccountSettings struct {
	AccountID   string       `json:"account_id"`
	Source      SourceConfig `json:"source"`
	NotifyToken string       `json:"notify_token,omitempty"`
	LastSyncAt  *time.Time   `json:"last_sync_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ConnectionResult is the outcome of a connection test.
type ConnectionResult struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	UsedProxy  bool       `json:"used_proxy"`
	SourceType SourceType `json:"source_type"`
	Sample     []any      `json:"sample,omitempty"`
}

// SurveyForm is one deployed KoBoToolbox asset.
type SurveyForm struct {
	UID             string `json:"uid"`
	Name            string `json:"name"`
	AssetType       string `json:"asset_type"`
	Active          bool   `json:"deployment__active"`
	SubmissionCount int    `json:"deployment__submission_count"`
	DateCreated     string `json:"date_created"`
	DateModified    string `json:"date_modified"`
}
