package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/database"
)

// SyncCounts holds the item counters recorded when a sync event closes
type SyncCounts struct {
	Processed int
	Created   int
	Updated   int
}

// SyncEventService is the append-only sync audit log. Events are opened when
// a sync starts and closed exactly once when it ends; a completed event is
// never modified again.
type SyncEventService struct {
	db *gorm.DB
}

// NewSyncEventService creates a new sync event service
func NewSyncEventService(db *gorm.DB) *SyncEventService {
	return &SyncEventService{db: db}
}

// Open records the start of a sync attempt
func (s *SyncEventService) Open(tenantID, integrationID string, kind database.SyncEventKind) (*database.SyncEvent, error) {
	event := database.SyncEvent{
		TenantID:      tenantID,
		IntegrationID: integrationID,
		Kind:          kind,
		Status:        database.SyncEventStatusRunning,
		StartedAt:     time.Now(),
	}
	if err := s.db.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("failed to open sync event: %w", err)
	}
	return &event, nil
}

// Close finalizes a running sync event. Closing an already-completed event
// is an error: history entries are immutable.
func (s *SyncEventService) Close(eventID string, status database.SyncEventStatus, counts SyncCounts, errorMessage string) error {
	var event database.SyncEvent
	if err := s.db.First(&event, "id = ?", eventID).Error; err != nil {
		return fmt.Errorf("failed to load sync event %s: %w", eventID, err)
	}
	if event.CompletedAt != nil {
		return fmt.Errorf("sync event %s is already completed", eventID)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":          status,
		"items_processed": counts.Processed,
		"items_created":   counts.Created,
		"items_updated":   counts.Updated,
		"completed_at":    now,
		"duration_ms":     now.Sub(event.StartedAt).Milliseconds(),
		"error_message":   errorMessage,
	}
	if err := s.db.Model(&event).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to close sync event %s: %w", eventID, err)
	}
	return nil
}

// ListRecent returns a tenant's latest sync events, newest first
func (s *SyncEventService) ListRecent(tenantID string, limit int) ([]database.SyncEvent, error) {
	var events []database.SyncEvent
	err := s.db.Where("tenant_id = ?", tenantID).
		Order("started_at DESC").Order("id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ListCompletedSince returns completed events finalized after the given time,
// oldest first. Used by the event stream to push finished syncs in order.
func (s *SyncEventService) ListCompletedSince(tenantID string, since time.Time) ([]database.SyncEvent, error) {
	var events []database.SyncEvent
	err := s.db.Where("tenant_id = ? AND completed_at IS NOT NULL AND completed_at > ?", tenantID, since).
		Order("completed_at ASC").Order("id ASC").
		Find(&events).Error
	return events, err
}
