package handlers

import (
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/api"
	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/services"
)

// IssuesHandler exposes the issue group read API
type IssuesHandler struct {
	issues  *services.IssueService
	reports *services.ReportService
}

// NewIssuesHandler creates a new issues handler
func NewIssuesHandler(issues *services.IssueService, reports *services.ReportService) *IssuesHandler {
	return &IssuesHandler{
		issues:  issues,
		reports: reports,
	}
}

// SetupRoutes configures issue routes
func (h *IssuesHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/issues", h.handleList)
	// /api/issues/{id} and /api/issues/{id}/reports
	mux.HandleFunc("/api/issues/", h.handleIssue)
}

// handleList handles GET /api/issues?tenant_id=...&status=...
func (h *IssuesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if !api.AllowMethod(w, r, http.MethodGet) {
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		api.RespondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	status := database.IssueGroupStatus(r.URL.Query().Get("status"))
	if status != "" && status != database.IssueGroupStatusOpen && status != database.IssueGroupStatusResolved {
		api.RespondError(w, http.StatusBadRequest, "status must be open or resolved")
		return
	}

	page := api.ParsePagination(r)
	groups, total, err := h.issues.ListGroups(tenantID, status, page.Offset(), page.PerPage)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list issues")
		return
	}

	api.RespondJSON(w, http.StatusOK, api.IssueGroupListResponse{
		Issues:   api.ToIssueGroupResponses(groups),
		PageMeta: page.Meta(total),
	})
}

// handleIssue routes GET /api/issues/{id}, PATCH /api/issues/{id} and
// GET /api/issues/{id}/reports
func (h *IssuesHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/issues/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		switch r.Method {
		case http.MethodGet:
			h.getIssue(w, parts[0])
		case http.MethodPatch:
			h.patchIssue(w, r, parts[0])
		default:
			api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case len(parts) == 2 && parts[1] == "reports":
		if !api.AllowMethod(w, r, http.MethodGet) {
			return
		}
		h.listReports(w, parts[0])
	default:
		api.RespondError(w, http.StatusNotFound, "Not found")
	}
}

// getIssue returns one issue group
func (h *IssuesHandler) getIssue(w http.ResponseWriter, id string) {
	group, err := h.issues.GetGroup(id)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.ToIssueGroupResponse(group))
}

// patchIssue updates an issue group's triage status
func (h *IssuesHandler) patchIssue(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := database.IssueGroupStatus(req.Status)
	if status != database.IssueGroupStatusOpen && status != database.IssueGroupStatusResolved {
		api.RespondError(w, http.StatusBadRequest, "status must be open or resolved")
		return
	}

	group, err := h.issues.SetStatus(id, status)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	group.Status = status
	api.RespondJSON(w, http.StatusOK, api.ToIssueGroupResponse(group))
}

// listReports returns an issue group's member reports
func (h *IssuesHandler) listReports(w http.ResponseWriter, id string) {
	if _, err := h.issues.GetGroup(id); err != nil {
		h.respondLookupError(w, err)
		return
	}

	reports, err := h.reports.ListByGroup(id)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}
	api.RespondJSON(w, http.StatusOK, api.ToRawReportResponses(reports))
}

// respondLookupError maps a group lookup failure to the right status
func (h *IssuesHandler) respondLookupError(w http.ResponseWriter, err error) {
	if err == gorm.ErrRecordNotFound {
		api.RespondError(w, http.StatusNotFound, "Issue not found")
		return
	}
	api.RespondError(w, http.StatusInternalServerError, "Failed to load issue")
}
