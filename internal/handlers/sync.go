package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/issuedeck/issuedeck/internal/api"
	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/scheduler"
	"github.com/issuedeck/issuedeck/internal/services"
)

// recentEventsLimit caps how many recent events the status endpoint returns
const recentEventsLimit = 20

// SyncHandler exposes manual sync triggering and sync status
type SyncHandler struct {
	scheduler    *scheduler.Scheduler
	integrations *services.IntegrationService
	events       *services.SyncEventService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(
	sched *scheduler.Scheduler,
	integrations *services.IntegrationService,
	events *services.SyncEventService,
) *SyncHandler {
	return &SyncHandler{
		scheduler:    sched,
		integrations: integrations,
		events:       events,
	}
}

// SetupRoutes configures sync routes
func (h *SyncHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sync/trigger", h.handleTrigger)
	mux.HandleFunc("/api/sync/status", h.handleStatus)
}

// handleTrigger handles POST /api/sync/trigger
func (h *SyncHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !api.AllowMethod(w, r, http.MethodPost) {
		return
	}

	var req api.TriggerSyncRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	provider, err := database.ParseProvider(req.Provider)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	event, err := h.scheduler.TriggerManualSync(req.TenantID, provider, req.Full)
	if err != nil {
		if errors.Is(err, scheduler.ErrSyncInProgress) {
			api.RespondErrorWithCode(w, http.StatusConflict, "sync_in_progress", err.Error())
			return
		}
		api.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	log.Printf("SyncHandler: manual %s sync triggered for tenant %s", provider, req.TenantID)
	api.RespondJSON(w, http.StatusAccepted, api.TriggerSyncResponse{
		EventID:       event.ID,
		IntegrationID: event.IntegrationID,
		Status:        string(event.Status),
	})
}

// handleStatus handles GET /api/sync/status?tenant_id=...
func (h *SyncHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !api.AllowMethod(w, r, http.MethodGet) {
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		api.RespondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	integrations, err := h.integrations.ListByTenant(tenantID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load integrations")
		return
	}

	inFlight := make(map[string]bool)
	for _, id := range h.scheduler.InFlight() {
		inFlight[id] = true
	}

	resp := api.SyncStatusResponse{
		TenantID:     tenantID,
		Integrations: make([]api.IntegrationStatusResponse, 0, len(integrations)),
	}
	for _, integration := range integrations {
		resp.Integrations = append(resp.Integrations, api.IntegrationStatusResponse{
			ID:             integration.ID,
			Provider:       string(integration.Provider),
			Active:         integration.Active,
			Syncing:        inFlight[integration.ID],
			LastSyncedAt:   integration.LastSyncedAt,
			LastSyncStatus: string(integration.LastSyncStatus),
			LastError:      integration.LastError,
		})
	}

	events, err := h.events.ListRecent(tenantID, recentEventsLimit)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load sync events")
		return
	}
	resp.RecentEvents = api.ToSyncEventResponses(events)

	api.RespondJSON(w, http.StatusOK, resp)
}
