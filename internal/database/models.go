package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Provider identifies an external report source
type Provider string

const (
	ProviderCRMTicket    Provider = "crm_ticket"
	ProviderIssueTracker Provider = "issue_tracker"
	ProviderChatLog      Provider = "chat_log"
)

// ValidProviders returns all supported providers
func ValidProviders() []Provider {
	return []Provider{ProviderCRMTicket, ProviderIssueTracker, ProviderChatLog}
}

// ParseProvider validates a provider string
func ParseProvider(s string) (Provider, error) {
	for _, p := range ValidProviders() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", errors.New("unknown provider: " + s)
}

// SyncStatus represents the outcome of the most recent sync for an integration
type SyncStatus string

const (
	SyncStatusNever   SyncStatus = "never"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// TenantIntegration is a configured connection between a tenant and a provider.
// At most one active integration per (tenant, provider) is scheduled; the
// pipeline never deletes rows, it deactivates them.
type TenantIntegration struct {
	ID            string      `gorm:"primaryKey;size:36" json:"id"`
	TenantID      string      `gorm:"size:36;not null;index" json:"tenant_id"`
	Provider      Provider    `gorm:"type:varchar(32);not null;index" json:"provider"`
	// No default tag: gorm would drop a zero-valued field with one from the
	// INSERT, silently activating integrations created disabled
	Active        bool        `gorm:"not null" json:"active"`
	Credentials   Credentials `gorm:"type:jsonb" json:"-"`
	WebhookSecret string      `gorm:"type:text" json:"-"`

	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	LastSyncStatus SyncStatus `gorm:"type:varchar(16);default:'never'" json:"last_sync_status"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID if none is set
func (i *TenantIntegration) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// RawReport is one ingested item from a provider.
// Re-ingestion under the same (tenant, provider, external_id) updates the row
// in place instead of duplicating it.
type RawReport struct {
	ID         string   `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string   `gorm:"size:36;not null;index;uniqueIndex:idx_raw_reports_dedup" json:"tenant_id"`
	Provider   Provider `gorm:"type:varchar(32);not null;uniqueIndex:idx_raw_reports_dedup" json:"provider"`
	ExternalID *string  `gorm:"size:255;uniqueIndex:idx_raw_reports_dedup" json:"external_id,omitempty"`

	Title string `gorm:"type:varchar(512);not null" json:"title"`
	Body  string `gorm:"type:text" json:"body,omitempty"`
	URL   string `gorm:"type:text" json:"url,omitempty"`

	// Provider-specific fields the pipeline carries but does not interpret
	// (ticket status, reporter, channel name)
	Metadata JSONB `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Normalized-content hash used as the clustering key
	Signature string `gorm:"size:32;index" json:"signature"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID if none is set
func (r *RawReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// SourceCount is one entry of an issue group's per-provider rollup
type SourceCount struct {
	Provider Provider `json:"provider"`
	Count    int      `json:"count"`
}

// SourceRollup is the list of per-provider counts, stored as JSONB
type SourceRollup []SourceCount

// Scan implements the sql.Scanner interface
func (s *SourceRollup) Scan(value interface{}) error {
	if value == nil {
		*s = SourceRollup{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface
func (s SourceRollup) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(SourceRollup{})
	}
	return json.Marshal(s)
}

// IssueGroupStatus represents the triage status of an issue group
type IssueGroupStatus string

const (
	IssueGroupStatusOpen     IssueGroupStatus = "open"
	IssueGroupStatusResolved IssueGroupStatus = "resolved"
)

// IssueGroup is a cluster of raw reports believed to describe one underlying
// issue. Frequency and Sources are rollups derived from current membership,
// never authoritative on their own.
type IssueGroup struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	TenantID string `gorm:"size:36;not null;index;uniqueIndex:idx_issue_groups_sig" json:"tenant_id"`

	// Signature of the member reports; the lookup key during reclustering
	Signature string `gorm:"size:32;not null;uniqueIndex:idx_issue_groups_sig" json:"signature"`

	Title   string           `gorm:"type:varchar(512);not null" json:"title"`
	Summary string           `gorm:"type:text" json:"summary,omitempty"`
	Status  IssueGroupStatus `gorm:"type:varchar(16);default:'open'" json:"status"`

	Frequency int          `gorm:"not null;default:0" json:"frequency"`
	Sources   SourceRollup `gorm:"type:jsonb" json:"sources"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a UUID if none is set
func (g *IssueGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// IssueGroupReport links an issue group to a member raw report.
// Membership for a group is fully replaced on every reclustering pass.
type IssueGroupReport struct {
	GroupID   string    `gorm:"primaryKey;size:36" json:"group_id"`
	ReportID  string    `gorm:"primaryKey;size:36" json:"report_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncEventKind represents what triggered a sync attempt
type SyncEventKind string

const (
	SyncEventKindScheduled SyncEventKind = "scheduled"
	SyncEventKindManual    SyncEventKind = "manual"
	SyncEventKindWebhook   SyncEventKind = "webhook"
)

// SyncEventStatus represents the state of a sync attempt
type SyncEventStatus string

const (
	SyncEventStatusRunning SyncEventStatus = "running"
	SyncEventStatusSuccess SyncEventStatus = "success"
	SyncEventStatusFailed  SyncEventStatus = "failed"
)

// SyncEvent is one audit record per sync attempt. Created at sync start,
// finalized at sync end, immutable once completed.
type SyncEvent struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	TenantID      string          `gorm:"size:36;not null;index" json:"tenant_id"`
	IntegrationID string          `gorm:"size:36;not null;index" json:"integration_id"`
	Kind          SyncEventKind   `gorm:"type:varchar(16);not null" json:"kind"`
	Status        SyncEventStatus `gorm:"type:varchar(16);not null" json:"status"`

	ItemsProcessed int `gorm:"default:0" json:"items_processed"`
	ItemsCreated   int `gorm:"default:0" json:"items_created"`
	ItemsUpdated   int `gorm:"default:0" json:"items_updated"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID and stamps StartedAt if unset
func (e *SyncEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	return nil
}

// TableName overrides for explicit table naming
func (TenantIntegration) TableName() string {
	return "tenant_integrations"
}

func (RawReport) TableName() string {
	return "raw_reports"
}

func (IssueGroup) TableName() string {
	return "issue_groups"
}

func (IssueGroupReport) TableName() string {
	return "issue_group_reports"
}

func (SyncEvent) TableName() string {
	return "sync_events"
}
