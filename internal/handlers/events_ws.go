package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/issuedeck/issuedeck/internal/api"
	"github.com/issuedeck/issuedeck/internal/services"
)

// eventsPollInterval is how often the stream checks for newly completed syncs
const eventsPollInterval = 2 * time.Second

// eventsWriteTimeout bounds each websocket write
const eventsWriteTimeout = 10 * time.Second

// EventsWSHandler streams completed sync events to dashboard clients over
// WebSocket. Each connection gets every event finalized after it attached,
// in completion order.
type EventsWSHandler struct {
	upgrader websocket.Upgrader
	events   *services.SyncEventService
}

// NewEventsWSHandler creates a new sync event stream handler
func NewEventsWSHandler(events *services.SyncEventService) *EventsWSHandler {
	return &EventsWSHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Dashboard origin is enforced by the CORS layer
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		events: events,
	}
}

// SetupRoutes configures WebSocket routes
func (h *EventsWSHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/events", h.HandleWebSocket)
}

// HandleWebSocket handles GET /ws/events?tenant_id=...
func (h *EventsWSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("EventsWSHandler: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("EventsWSHandler: client attached for tenant %s", tenantID)

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice the peer closing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPollInterval)
	defer ticker.Stop()

	cursor := time.Now()
	for {
		select {
		case <-done:
			log.Printf("EventsWSHandler: client detached for tenant %s", tenantID)
			return
		case <-ticker.C:
			events, err := h.events.ListCompletedSince(tenantID, cursor)
			if err != nil {
				log.Printf("EventsWSHandler: failed to load events for tenant %s: %v", tenantID, err)
				continue
			}
			for i := range events {
				conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
				if err := conn.WriteJSON(api.ToSyncEventResponse(&events[i])); err != nil {
					log.Printf("EventsWSHandler: write failed for tenant %s: %v", tenantID, err)
					return
				}
				cursor = *events[i].CompletedAt
			}
		}
	}
}
