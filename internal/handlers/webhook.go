package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/issuedeck/issuedeck/internal/api"
	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/services"
)

// WebhookSecretHeader carries the shared secret on push deliveries
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookHandler accepts push-style report deliveries from providers.
// Each delivery is authenticated by the integration's webhook secret,
// ingested immediately and followed by a reclustering pass.
type WebhookHandler struct {
	integrations *services.IntegrationService
	reports      *services.ReportService
	clustering   *services.ClusteringService
	events       *services.SyncEventService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	integrations *services.IntegrationService,
	reports *services.ReportService,
	clustering *services.ClusteringService,
	events *services.SyncEventService,
) *WebhookHandler {
	return &WebhookHandler{
		integrations: integrations,
		reports:      reports,
		clustering:   clustering,
		events:       events,
	}
}

// SetupRoutes configures webhook routes
func (h *WebhookHandler) SetupRoutes(mux *http.ServeMux) {
	// Report webhooks: /webhook/report/{integration_id}
	mux.HandleFunc("/webhook/report/", h.HandleReport)
}

// HandleReport handles POST /webhook/report/{integration_id}
func (h *WebhookHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if !api.AllowMethod(w, r, http.MethodPost) {
		return
	}

	integrationID := strings.TrimPrefix(r.URL.Path, "/webhook/report/")
	if integrationID == "" || strings.Contains(integrationID, "/") {
		api.RespondError(w, http.StatusNotFound, "Integration not found")
		return
	}

	integration, err := h.integrations.GetByID(integrationID)
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Integration not found")
		return
	}
	if !integration.Active {
		api.RespondError(w, http.StatusForbidden, "Integration is disabled")
		return
	}

	secret := r.Header.Get(WebhookSecretHeader)
	if integration.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(integration.WebhookSecret)) != 1 {
		log.Printf("WebhookHandler: bad secret for integration %s from %s", integration.ID, r.RemoteAddr)
		api.RespondError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	var req api.WebhookReportRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	event, err := h.events.Open(integration.TenantID, integration.ID, database.SyncEventKindWebhook)
	if err != nil {
		log.Printf("WebhookHandler: failed to open sync event: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to record delivery")
		return
	}

	report, created, err := h.reports.Upsert(integration.TenantID, integration.Provider,
		req.ExternalID, req.Title, req.Body, req.URL, nil)
	if err != nil {
		h.closeFailed(event.ID, err.Error())
		api.RespondError(w, http.StatusInternalServerError, "Failed to store report")
		return
	}

	counts := services.SyncCounts{Processed: 1}
	if created {
		counts.Created = 1
	} else {
		counts.Updated = 1
	}

	if _, err := h.clustering.Recluster(r.Context(), integration.TenantID); err != nil {
		h.closeFailed(event.ID, err.Error())
		api.RespondError(w, http.StatusInternalServerError, "Failed to recluster reports")
		return
	}

	if err := h.events.Close(event.ID, database.SyncEventStatusSuccess, counts, ""); err != nil {
		log.Printf("WebhookHandler: failed to close sync event %s: %v", event.ID, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	api.RespondJSON(w, status, api.WebhookReportResponse{
		ReportID: report.ID,
		Created:  created,
	})
}

// closeFailed finalizes the delivery's sync event as failed
func (h *WebhookHandler) closeFailed(eventID, message string) {
	if err := h.events.Close(eventID, database.SyncEventStatusFailed, services.SyncCounts{}, message); err != nil {
		log.Printf("WebhookHandler: failed to close sync event %s: %v", eventID, err)
	}
}
