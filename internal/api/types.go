package api

import (
	"time"

	"github.com/issuedeck/issuedeck/internal/database"
)

// ========== Auth Types ==========

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the response body for POST /auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ========== Sync Types ==========

// TriggerSyncRequest is the request body for POST /api/sync/trigger.
type TriggerSyncRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Provider string `json:"provider" validate:"required,provider"`
	Full     bool   `json:"full"`
}

// TriggerSyncResponse is the response body for POST /api/sync/trigger.
type TriggerSyncResponse struct {
	EventID       string `json:"event_id"`
	IntegrationID string `json:"integration_id"`
	Status        string `json:"status"`
}

// IntegrationStatusResponse is one integration's entry in GET /api/sync/status.
type IntegrationStatusResponse struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	Active         bool       `json:"active"`
	Syncing        bool       `json:"syncing"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	LastSyncStatus string     `json:"last_sync_status"`
	LastError      string     `json:"last_error,omitempty"`
}

// SyncStatusResponse is the response body for GET /api/sync/status.
type SyncStatusResponse struct {
	TenantID     string                      `json:"tenant_id"`
	Integrations []IntegrationStatusResponse `json:"integrations"`
	RecentEvents []SyncEventResponse         `json:"recent_events"`
}

// SyncEventResponse is one sync attempt in the audit log.
type SyncEventResponse struct {
	ID             string     `json:"id"`
	IntegrationID  string     `json:"integration_id"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsCreated   int        `json:"items_created"`
	ItemsUpdated   int        `json:"items_updated"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// ========== Webhook Types ==========

// WebhookReportRequest is the request body for POST /webhook/report/:id.
type WebhookReportRequest struct {
	ExternalID string `json:"external_id" validate:"omitempty,max=255"`
	Title      string `json:"title" validate:"required,min=1,max=512"`
	Body       string `json:"body"`
	URL        string `json:"url" validate:"omitempty,url"`
}

// WebhookReportResponse is the response body for POST /webhook/report/:id.
type WebhookReportResponse struct {
	ReportID string `json:"report_id"`
	Created  bool   `json:"created"`
}

// ========== Issue Types ==========

// IssueGroupResponse is one issue group in list and detail responses.
type IssueGroupResponse struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Summary    string                `json:"summary,omitempty"`
	Status     string                `json:"status"`
	Frequency  int                   `json:"frequency"`
	Sources    database.SourceRollup `json:"sources"`
	LastSeenAt *time.Time            `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// RawReportResponse is one member report of an issue group.
type RawReportResponse struct {
	ID         string         `json:"id"`
	Provider   string         `json:"provider"`
	ExternalID string         `json:"external_id,omitempty"`
	Title      string         `json:"title"`
	Body       string         `json:"body,omitempty"`
	URL        string         `json:"url,omitempty"`
	Metadata   database.JSONB `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IssueGroupListResponse is the paginated response for GET /api/issues.
type IssueGroupListResponse struct {
	Issues []IssueGroupResponse `json:"issues"`
	PageMeta
}
