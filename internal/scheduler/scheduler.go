package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/issuedeck/issuedeck/internal/connectors"
	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/services"
	"github.com/issuedeck/issuedeck/internal/tokens"
)

// ErrSyncInProgress means a sync for the integration is already running.
// Only one sync per integration runs at a time, regardless of trigger.
var ErrSyncInProgress = errors.New("sync already in progress for this integration")

// defaultCadence is used for providers without a configured cadence
const defaultCadence = 15 * time.Minute

// Scheduler drives periodic provider syncs. Each tick it finds active
// integrations whose cadence has elapsed and launches one sync task per
// integration; an integration with a sync already in flight is skipped.
// Failed syncs are not backed off, they simply become due again next cadence.
type Scheduler struct {
	integrations *services.IntegrationService
	reports      *services.ReportService
	clustering   *services.ClusteringService
	events       *services.SyncEventService
	registry     *connectors.Registry
	cadences     map[database.Provider]time.Duration

	tick          time.Duration
	shutdownGrace time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inFlight map[string]struct{}
	sem      chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler
func New(
	integrations *services.IntegrationService,
	reports *services.ReportService,
	clustering *services.ClusteringService,
	events *services.SyncEventService,
	registry *connectors.Registry,
	cadences map[database.Provider]time.Duration,
	tick time.Duration,
	shutdownGrace time.Duration,
	maxConcurrent int,
) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		integrations:  integrations,
		reports:       reports,
		clustering:    clustering,
		events:        events,
		registry:      registry,
		cadences:      cadences,
		tick:          tick,
		shutdownGrace: shutdownGrace,
		ctx:           ctx,
		cancel:        cancel,
		inFlight:      make(map[string]struct{}),
		sem:           make(chan struct{}, maxConcurrent),
	}
}

// Start runs the scheduling loop until stop is closed, then drains in-flight
// syncs. Tasks still running after the shutdown grace period are cancelled;
// a cancelled task records its sync event as failed.
func (s *Scheduler) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	log.Printf("Sync scheduler started (tick %s)", s.tick)
	for {
		select {
		case <-ticker.C:
			s.runDue()
		case <-stop:
			s.drain()
			log.Println("Sync scheduler stopped")
			return
		}
	}
}

// drain waits for in-flight syncs, cancelling stragglers after the grace
func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownGrace):
		log.Printf("Sync scheduler: grace period elapsed, cancelling in-flight syncs")
		s.cancel()
		<-done
	}
	s.cancel()
}

// runDue launches a sync for every integration whose cadence has elapsed
func (s *Scheduler) runDue() {
	integrations, err := s.integrations.ListActive()
	if err != nil {
		log.Printf("Sync scheduler: failed to list integrations: %v", err)
		return
	}

	now := time.Now()
	for i := range integrations {
		integration := integrations[i]
		if !s.due(&integration, now) {
			continue
		}
		_, err := s.launch(&integration, database.SyncEventKindScheduled, false)
		if err != nil && !errors.Is(err, ErrSyncInProgress) {
			log.Printf("Sync scheduler: failed to launch sync for integration %s: %v", integration.ID, err)
		}
	}
}

// due reports whether the integration's cadence has elapsed
func (s *Scheduler) due(integration *database.TenantIntegration, now time.Time) bool {
	if integration.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*integration.LastSyncedAt) >= s.CadenceFor(integration.Provider)
}

// CadenceFor returns the polling interval for a provider
func (s *Scheduler) CadenceFor(provider database.Provider) time.Duration {
	if cadence, ok := s.cadences[provider]; ok {
		return cadence
	}
	return defaultCadence
}

// TriggerManualSync starts an on-demand sync for a tenant's integration and
// returns the opened sync event. full bypasses the incremental window and
// re-pulls everything. Returns ErrSyncInProgress when one is already running.
func (s *Scheduler) TriggerManualSync(tenantID string, provider database.Provider, full bool) (*database.SyncEvent, error) {
	integration, err := s.integrations.FindActive(tenantID, provider)
	if err != nil {
		return nil, fmt.Errorf("no active %s integration for tenant %s", provider, tenantID)
	}
	return s.launch(integration, database.SyncEventKindManual, full)
}

// InFlight returns the integration ids with a sync currently running
func (s *Scheduler) InFlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.inFlight))
	for id := range s.inFlight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// launch acquires the integration's single-flight slot, opens the sync event
// and runs the sync in the background
func (s *Scheduler) launch(integration *database.TenantIntegration, kind database.SyncEventKind, full bool) (*database.SyncEvent, error) {
	s.mu.Lock()
	if _, running := s.inFlight[integration.ID]; running {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	s.inFlight[integration.ID] = struct{}{}
	s.mu.Unlock()

	event, err := s.events.Open(integration.TenantID, integration.ID, kind)
	if err != nil {
		s.release(integration.ID)
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(integration.ID)

		// Global concurrency cap across all integrations
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.ctx.Done():
			s.finishFailed(integration, event, services.SyncCounts{}, "sync cancelled during shutdown")
			return
		}
		s.runSync(s.ctx, integration, event, full)
	}()
	return event, nil
}

// release frees the integration's single-flight slot
func (s *Scheduler) release(integrationID string) {
	s.mu.Lock()
	delete(s.inFlight, integrationID)
	s.mu.Unlock()
}

// runSync executes one sync attempt end to end: pull, ingest, recluster,
// record the outcome. Partial progress is kept on failure; the failed window
// is re-pulled next time because LastSyncedAt only advances on success.
func (s *Scheduler) runSync(ctx context.Context, integration *database.TenantIntegration, event *database.SyncEvent, full bool) {
	connector, err := s.registry.Get(integration.Provider)
	if err != nil {
		s.finishFailed(integration, event, services.SyncCounts{}, err.Error())
		return
	}

	// The window anchor is taken before the pull so items modified while
	// the sync runs are picked up again next time
	startedAt := time.Now()

	var since *time.Time
	if !full {
		since = integration.LastSyncedAt
	}

	items, err := connector.Pull(ctx, integration, since)
	if err != nil {
		s.finishFailed(integration, event, services.SyncCounts{}, syncErrorMessage(ctx, err))
		return
	}

	var counts services.SyncCounts
	for _, item := range items {
		_, created, err := s.reports.Upsert(integration.TenantID, integration.Provider,
			item.ExternalID, item.Title, item.Body, item.URL, database.JSONB(item.Metadata))
		if err != nil {
			s.finishFailed(integration, event, counts,
				fmt.Sprintf("failed to store item %s: %v", item.ExternalID, err))
			return
		}
		counts.Processed++
		if created {
			counts.Created++
		} else {
			counts.Updated++
		}
	}

	if _, err := s.clustering.Recluster(ctx, integration.TenantID); err != nil {
		s.finishFailed(integration, event, counts, syncErrorMessage(ctx, err))
		return
	}

	if err := s.integrations.MarkSyncSuccess(integration.ID, startedAt); err != nil {
		log.Printf("Sync scheduler: failed to mark integration %s synced: %v", integration.ID, err)
	}
	if err := s.events.Close(event.ID, database.SyncEventStatusSuccess, counts, ""); err != nil {
		log.Printf("Sync scheduler: failed to close sync event %s: %v", event.ID, err)
	}
	log.Printf("Sync scheduler: %s sync for integration %s processed %d items (%d new, %d updated)",
		event.Kind, integration.ID, counts.Processed, counts.Created, counts.Updated)
}

// finishFailed records a failed sync on both the integration and the event
func (s *Scheduler) finishFailed(integration *database.TenantIntegration, event *database.SyncEvent, counts services.SyncCounts, message string) {
	log.Printf("Sync scheduler: sync for integration %s failed: %s", integration.ID, message)
	if err := s.integrations.MarkSyncFailure(integration.ID, message); err != nil {
		log.Printf("Sync scheduler: failed to mark integration %s failed: %v", integration.ID, err)
	}
	if err := s.events.Close(event.ID, database.SyncEventStatusFailed, counts, message); err != nil {
		log.Printf("Sync scheduler: failed to close sync event %s: %v", event.ID, err)
	}
}

// syncErrorMessage renders a sync failure, distinguishing shutdown
// cancellation and auth failures from ordinary provider trouble
func syncErrorMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "sync cancelled during shutdown"
	}
	var authErr *tokens.AuthError
	if errors.As(err, &authErr) {
		return fmt.Sprintf("authentication failed: %v", authErr)
	}
	if connectors.IsTransient(err) {
		return fmt.Sprintf("provider unavailable: %v", err)
	}
	return err.Error()
}
