package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/utils"
)

// signatureInputMaxLen bounds how much normalized text feeds the signature.
// Reports differing only past this prefix coalesce into one group; that is a
// deliberate precision/recall tradeoff, not a hashing bug.
const signatureInputMaxLen = 200

// signatureLen is the hex length of the stored signature
const signatureLen = 24

// Signature computes the clustering key for a report: lowercase, collapse
// whitespace, truncate, hash.
func Signature(title, body string) string {
	key := utils.NormalizeText(title + "\n" + body)
	if len(key) > signatureInputMaxLen {
		key = key[:signatureInputMaxLen]
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:signatureLen]
}

// SyntheticExternalID builds a stable external id for sources whose items
// have none of their own (e.g. chat messages keyed by channel and timestamp)
func SyntheticExternalID(parts ...string) string {
	return strings.Join(parts, ":")
}

// ReportService is the raw report store. Ingestion is idempotent: the same
// (tenant, provider, external_id) updates the existing row in place.
type ReportService struct {
	db *gorm.DB
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// Upsert inserts or updates one raw report and returns it along with whether
// a new row was created. Metadata is the provider-specific payload carried
// alongside the normalized fields; nil leaves the stored value untouched.
func (s *ReportService) Upsert(tenantID string, provider database.Provider, externalID, title, body, url string, metadata database.JSONB) (*database.RawReport, bool, error) {
	signature := Signature(title, body)

	if externalID != "" {
		var existing database.RawReport
		err := s.db.Where("tenant_id = ? AND provider = ? AND external_id = ?",
			tenantID, provider, externalID).First(&existing).Error
		if err == nil {
			updates := map[string]interface{}{
				"title":     title,
				"body":      body,
				"url":       url,
				"signature": signature,
			}
			if metadata != nil {
				updates["metadata"] = metadata
			}
			if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
				return nil, false, fmt.Errorf("failed to update raw report: %w", err)
			}
			return &existing, false, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, false, fmt.Errorf("failed to look up raw report: %w", err)
		}
	}

	report := database.RawReport{
		TenantID:  tenantID,
		Provider:  provider,
		Title:     title,
		Body:      body,
		URL:       url,
		Metadata:  metadata,
		Signature: signature,
	}
	if externalID != "" {
		report.ExternalID = &externalID
	}
	if err := s.db.Create(&report).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create raw report: %w", err)
	}
	return &report, true, nil
}

// ListByTenant returns all reports for a tenant in deterministic order.
// The secondary id ordering breaks exact created_at ties so reruns see the
// same "first" report.
func (s *ReportService) ListByTenant(tenantID string) ([]database.RawReport, error) {
	var reports []database.RawReport
	err := s.db.Where("tenant_id = ?", tenantID).
		Order("created_at ASC").Order("id ASC").
		Find(&reports).Error
	return reports, err
}

// ListByGroup returns the current member reports of an issue group
func (s *ReportService) ListByGroup(groupID string) ([]database.RawReport, error) {
	var reports []database.RawReport
	err := s.db.
		Joins("JOIN issue_group_reports ON issue_group_reports.report_id = raw_reports.id").
		Where("issue_group_reports.group_id = ?", groupID).
		Order("raw_reports.created_at ASC").Order("raw_reports.id ASC").
		Find(&reports).Error
	return reports, err
}
