package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/database"
)

// IssueService serves the read side of issue groups
type IssueService struct {
	db *gorm.DB
}

// NewIssueService creates a new issue service
func NewIssueService(db *gorm.DB) *IssueService {
	return &IssueService{db: db}
}

// GetGroup loads one issue group
func (s *IssueService) GetGroup(id string) (*database.IssueGroup, error) {
	var group database.IssueGroup
	if err := s.db.First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// ListGroups returns a page of a tenant's issue groups ordered by frequency,
// most reported first. status filters when non-empty.
func (s *IssueService) ListGroups(tenantID string, status database.IssueGroupStatus, offset, limit int) ([]database.IssueGroup, int64, error) {
	query := s.db.Model(&database.IssueGroup{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count issue groups: %w", err)
	}

	var groups []database.IssueGroup
	err := query.
		Order("frequency DESC").Order("last_seen_at DESC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&groups).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list issue groups: %w", err)
	}
	return groups, total, nil
}

// SetStatus updates an issue group's triage status
func (s *IssueService) SetStatus(id string, status database.IssueGroupStatus) (*database.IssueGroup, error) {
	group, err := s.GetGroup(id)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(group).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update issue group status: %w", err)
	}
	return group, nil
}
