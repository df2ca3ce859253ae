package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/database"
)

// IntegrationService is the store for tenant integrations
type IntegrationService struct {
	db *gorm.DB
}

// NewIntegrationService creates a new integration service
func NewIntegrationService(db *gorm.DB) *IntegrationService {
	return &IntegrationService{db: db}
}

// GetByID loads one integration
func (s *IntegrationService) GetByID(id string) (*database.TenantIntegration, error) {
	var integration database.TenantIntegration
	if err := s.db.First(&integration, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

// FindActive finds a tenant's active integration for a provider
func (s *IntegrationService) FindActive(tenantID string, provider database.Provider) (*database.TenantIntegration, error) {
	var integration database.TenantIntegration
	err := s.db.Where("tenant_id = ? AND provider = ? AND active = ?", tenantID, provider, true).
		First(&integration).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// ListActive returns all active integrations across tenants, in a stable
// order so scheduler passes visit them deterministically
func (s *IntegrationService) ListActive() ([]database.TenantIntegration, error) {
	var integrations []database.TenantIntegration
	err := s.db.Where("active = ?", true).
		Order("tenant_id ASC").Order("provider ASC").Order("id ASC").
		Find(&integrations).Error
	return integrations, err
}

// ListByTenant returns all of a tenant's integrations
func (s *IntegrationService) ListByTenant(tenantID string) ([]database.TenantIntegration, error) {
	var integrations []database.TenantIntegration
	err := s.db.Where("tenant_id = ?", tenantID).
		Order("provider ASC").Order("id ASC").
		Find(&integrations).Error
	return integrations, err
}

// MarkSyncSuccess records a completed sync on the integration
func (s *IntegrationService) MarkSyncSuccess(id string, syncedAt time.Time) error {
	updates := map[string]interface{}{
		"last_synced_at":   syncedAt,
		"last_sync_status": database.SyncStatusSuccess,
		"last_error":       "",
	}
	if err := s.db.Model(&database.TenantIntegration{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark integration %s synced: %w", id, err)
	}
	return nil
}

// MarkSyncFailure records a failed sync on the integration. LastSyncedAt is
// left untouched so the next attempt re-pulls the failed window.
func (s *IntegrationService) MarkSyncFailure(id string, errorMessage string) error {
	updates := map[string]interface{}{
		"last_sync_status": database.SyncStatusFailed,
		"last_error":       errorMessage,
	}
	if err := s.db.Model(&database.TenantIntegration{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark integration %s failed: %w", id, err)
	}
	return nil
}

// Deactivate turns an integration off; the scheduler skips inactive ones
func (s *IntegrationService) Deactivate(id string) error {
	if err := s.db.Model(&database.TenantIntegration{}).Where("id = ?", id).Update("active", false).Error; err != nil {
		return fmt.Errorf("failed to deactivate integration %s: %w", id, err)
	}
	return nil
}
