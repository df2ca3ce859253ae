package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/database"
)

// summarySampleSize bounds how many member reports are handed to the
// summarizer per group
const summarySampleSize = 5

// fallbackBodyCount is how many bodies the deterministic summary joins
const fallbackBodyCount = 3

// ReclusterResult describes one clustering pass over a tenant
type ReclusterResult struct {
	CreatedGroups int
	UpdatedGroups int
	TotalGroups   int
}

// ClusteringService rebuilds a tenant's issue groups from its raw reports.
// Every pass recomputes the full grouping: memberships are replaced, rollups
// recomputed, and groups with no remaining members deleted. Running it twice
// with no new reports leaves the tenant's groups unchanged.
type ClusteringService struct {
	db               *gorm.DB
	summarizer       Summarizer
	summarizeTimeout time.Duration
}

// NewClusteringService creates a new clustering service
func NewClusteringService(db *gorm.DB, summarizer Summarizer, summarizeTimeout time.Duration) *ClusteringService {
	return &ClusteringService{
		db:               db,
		summarizer:       summarizer,
		summarizeTimeout: summarizeTimeout,
	}
}

// Recluster rebuilds all issue groups for a tenant
func (s *ClusteringService) Recluster(ctx context.Context, tenantID string) (*ReclusterResult, error) {
	var reports []database.RawReport
	err := s.db.Where("tenant_id = ?", tenantID).
		Order("created_at ASC").Order("id ASC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reports for tenant %s: %w", tenantID, err)
	}

	// Bucket by signature, preserving first-seen order so group creation
	// order is stable across runs
	buckets := make(map[string][]database.RawReport)
	var order []string
	for _, report := range reports {
		if report.Signature == "" {
			continue
		}
		if _, seen := buckets[report.Signature]; !seen {
			order = append(order, report.Signature)
		}
		buckets[report.Signature] = append(buckets[report.Signature], report)
	}

	// Summaries are computed before the transaction: the summarizer is a
	// network call and must not hold row locks
	titles := make(map[string]string, len(order))
	summaries := make(map[string]string, len(order))
	for _, sig := range order {
		title, summary := s.summarizeGroup(ctx, buckets[sig])
		titles[sig] = title
		summaries[sig] = summary
	}

	result := &ReclusterResult{TotalGroups: len(order)}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// The rebuild replaces memberships wholesale. Clearing every link for
		// the tenant up front also unlinks reports whose signature changed,
		// so their previous groups become orphans below.
		err := tx.Where("group_id IN (SELECT id FROM issue_groups WHERE tenant_id = ?)", tenantID).
			Delete(&database.IssueGroupReport{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear group memberships: %w", err)
		}

		for _, sig := range order {
			members := buckets[sig]

			var group database.IssueGroup
			err := tx.Where("tenant_id = ? AND signature = ?", tenantID, sig).First(&group).Error
			switch {
			case err == gorm.ErrRecordNotFound:
				group = database.IssueGroup{
					TenantID:  tenantID,
					Signature: sig,
					Status:    database.IssueGroupStatusOpen,
				}
				if err := tx.Create(&group).Error; err != nil {
					return fmt.Errorf("failed to create issue group: %w", err)
				}
				result.CreatedGroups++
			case err != nil:
				return fmt.Errorf("failed to look up issue group: %w", err)
			default:
				result.UpdatedGroups++
			}

			for _, member := range members {
				link := database.IssueGroupReport{GroupID: group.ID, ReportID: member.ID}
				if err := tx.Create(&link).Error; err != nil {
					return fmt.Errorf("failed to link report to group: %w", err)
				}
			}

			var sources database.SourceRollup
			counts := make(map[database.Provider]int)
			var sourceOrder []database.Provider
			lastSeen := members[0].UpdatedAt
			for _, member := range members {
				if counts[member.Provider] == 0 {
					sourceOrder = append(sourceOrder, member.Provider)
				}
				counts[member.Provider]++
				if member.UpdatedAt.After(lastSeen) {
					lastSeen = member.UpdatedAt
				}
			}
			for _, provider := range sourceOrder {
				sources = append(sources, database.SourceCount{Provider: provider, Count: counts[provider]})
			}

			updates := map[string]interface{}{
				"title":        titles[sig],
				"summary":      summaries[sig],
				"frequency":    len(members),
				"sources":      sources,
				"last_seen_at": lastSeen,
			}
			if err := tx.Model(&database.IssueGroup{}).Where("id = ?", group.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update issue group: %w", err)
			}
		}

		// Orphan cleanup: groups whose signature no longer matches any report
		err = tx.Where("tenant_id = ? AND id NOT IN (SELECT group_id FROM issue_group_reports)", tenantID).
			Delete(&database.IssueGroup{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete orphaned groups: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// summarizeGroup produces the title and summary for one group, falling back
// to deterministic text when the summarizer is unavailable or fails
func (s *ClusteringService) summarizeGroup(ctx context.Context, members []database.RawReport) (string, string) {
	sample := members
	if len(sample) > summarySampleSize {
		sample = sample[:summarySampleSize]
	}

	summarizeCtx, cancel := context.WithTimeout(ctx, s.summarizeTimeout)
	defer cancel()

	title, summary, err := s.summarizer.Summarize(summarizeCtx, sample)
	if err == nil {
		return title, summary
	}
	if !errors.Is(err, ErrSummarizerUnavailable) {
		log.Printf("ClusteringService: summarizer failed, using fallback: %v", err)
	}
	return fallbackTitleSummary(members)
}

// fallbackTitleSummary derives deterministic text from the members: the
// earliest report's title, and the first few non-empty bodies joined together
func fallbackTitleSummary(members []database.RawReport) (string, string) {
	title := strings.TrimSpace(members[0].Title)
	if title == "" {
		title = "Untitled issue"
	}

	var bodies []string
	for _, member := range members {
		body := strings.TrimSpace(member.Body)
		if body == "" {
			continue
		}
		bodies = append(bodies, body)
		if len(bodies) == fallbackBodyCount {
			break
		}
	}
	return title, strings.Join(bodies, " | ")
}
