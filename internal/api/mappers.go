package api

import (
	"github.com/issuedeck/issuedeck/internal/database"
)

// ToIssueGroupResponse maps an issue group to its API shape.
func ToIssueGroupResponse(group *database.IssueGroup) IssueGroupResponse {
	return IssueGroupResponse{
		ID:         group.ID,
		Title:      group.Title,
		Summary:    group.Summary,
		Status:     string(group.Status),
		Frequency:  group.Frequency,
		Sources:    group.Sources,
		LastSeenAt: group.LastSeenAt,
		CreatedAt:  group.CreatedAt,
		UpdatedAt:  group.UpdatedAt,
	}
}

// ToIssueGroupResponses maps a slice of issue groups.
func ToIssueGroupResponses(groups []database.IssueGroup) []IssueGroupResponse {
	out := make([]IssueGroupResponse, len(groups))
	for i := range groups {
		out[i] = ToIssueGroupResponse(&groups[i])
	}
	return out
}

// ToRawReportResponse maps a raw report to its API shape.
func ToRawReportResponse(report *database.RawReport) RawReportResponse {
	resp := RawReportResponse{
		ID:        report.ID,
		Provider:  string(report.Provider),
		Title:     report.Title,
		Body:      report.Body,
		URL:       report.URL,
		Metadata:  report.Metadata,
		CreatedAt: report.CreatedAt,
		UpdatedAt: report.UpdatedAt,
	}
	if report.ExternalID != nil {
		resp.ExternalID = *report.ExternalID
	}
	return resp
}

// ToRawReportResponses maps a slice of raw reports.
func ToRawReportResponses(reports []database.RawReport) []RawReportResponse {
	out := make([]RawReportResponse, len(reports))
	for i := range reports {
		out[i] = ToRawReportResponse(&reports[i])
	}
	return out
}

// ToSyncEventResponse maps a sync event to its API shape.
func ToSyncEventResponse(event *database.SyncEvent) SyncEventResponse {
	return SyncEventResponse{
		ID:             event.ID,
		IntegrationID:  event.IntegrationID,
		Kind:           string(event.Kind),
		Status:         string(event.Status),
		ItemsProcessed: event.ItemsProcessed,
		ItemsCreated:   event.ItemsCreated,
		ItemsUpdated:   event.ItemsUpdated,
		StartedAt:      event.StartedAt,
		CompletedAt:    event.CompletedAt,
		DurationMs:     event.DurationMs,
		ErrorMessage:   event.ErrorMessage,
	}
}

// ToSyncEventResponses maps a slice of sync events.
func ToSyncEventResponses(events []database.SyncEvent) []SyncEventResponse {
	out := make([]SyncEventResponse, len(events))
	for i := range events {
		out[i] = ToSyncEventResponse(&events[i])
	}
	return out
}
