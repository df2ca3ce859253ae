package services

import (
	"testing"
	"time"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/testhelpers"
)

func TestOpenCreatesRunningEvent(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewSyncEventService(db)

	event, err := svc.Open("tenant-1", "int-1", database.SyncEventKindScheduled)
	testhelpers.AssertNoError(t, err, "Open")
	testhelpers.AssertEqual(t, database.SyncEventStatusRunning, event.Status, "status")
	if event.ID == "" {
		t.Error("expected event to get an id")
	}
	if event.StartedAt.IsZero() {
		t.Error("expected started_at to be stamped")
	}
	if event.CompletedAt != nil {
		t.Error("a fresh event must not be completed")
	}
}

func TestCloseFinalizesEvent(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewSyncEventService(db)

	event, _ := svc.Open("tenant-1", "int-1", database.SyncEventKindManual)
	err := svc.Close(event.ID, database.SyncEventStatusSuccess,
		SyncCounts{Processed: 5, Created: 3, Updated: 2}, "")
	testhelpers.AssertNoError(t, err, "Close")

	var stored database.SyncEvent
	db.First(&stored, "id = ?", event.ID)
	testhelpers.AssertEqual(t, database.SyncEventStatusSuccess, stored.Status, "status")
	testhelpers.AssertEqual(t, 5, stored.ItemsProcessed, "processed")
	testhelpers.AssertEqual(t, 3, stored.ItemsCreated, "created")
	testhelpers.AssertEqual(t, 2, stored.ItemsUpdated, "updated")
	if stored.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if stored.DurationMs < 0 {
		t.Errorf("expected non-negative duration, got %d", stored.DurationMs)
	}
}

func TestCloseRecordsFailure(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewSyncEventService(db)

	event, _ := svc.Open("tenant-1", "int-1", database.SyncEventKindScheduled)
	err := svc.Close(event.ID, database.SyncEventStatusFailed,
		SyncCounts{Processed: 2}, "provider unavailable")
	testhelpers.AssertNoError(t, err, "Close")

	var stored database.SyncEvent
	db.First(&stored, "id = ?", event.ID)
	testhelpers.AssertEqual(t, database.SyncEventStatusFailed, stored.Status, "status")
	testhelpers.AssertEqual(t, "provider unavailable", stored.ErrorMessage, "error message")
	testhelpers.AssertEqual(t, 2, stored.ItemsProcessed, "partial progress kept")
}

func TestCloseRefusesCompletedEvent(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewSyncEventService(db)

	event, _ := svc.Open("tenant-1", "int-1", database.SyncEventKindScheduled)
	testhelpers.AssertNoError(t,
		svc.Close(event.ID, database.SyncEventStatusSuccess, SyncCounts{}, ""), "first Close")

	err := svc.Close(event.ID, database.SyncEventStatusFailed, SyncCounts{}, "late failure")
	testhelpers.AssertError(t, err, "second Close must be rejected")

	var stored database.SyncEvent
	db.First(&stored, "id = ?", event.ID)
	testhelpers.AssertEqual(t, database.SyncEventStatusSuccess, stored.Status, "history is immutable")
}

func TestListRecentNewestFirst(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewSyncEventService(db)

	for i := 0; i < 3; i++ {
		event := database.SyncEvent{
			TenantID:      "tenant-1",
			IntegrationID: "int-1",
			Kind:          database.SyncEventKindScheduled,
			Status:        database.SyncEventStatusSuccess,
			StartedAt:     time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&event).Error; err != nil {
			t.Fatalf("failed to seed event: %v", err)
		}
	}

	events, err := svc.ListRecent("tenant-1", 2)
	testhelpers.AssertNoError(t, err, "ListRecent")
	testhelpers.AssertEqual(t, 2, len(events), "limit applied")
	if events[0].StartedAt.Before(events[1].StartedAt) {
		t.Error("expected newest first")
	}
}

func TestListCompletedSince(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewSyncEventService(db)

	cutoff := time.Now()

	before, _ := svc.Open("tenant-1", "int-1", database.SyncEventKindScheduled)
	db.Model(&database.SyncEvent{}).Where("id = ?", before.ID).
		Updates(map[string]interface{}{
			"status":       database.SyncEventStatusSuccess,
			"completed_at": cutoff.Add(-time.Minute),
		})

	running, _ := svc.Open("tenant-1", "int-1", database.SyncEventKindScheduled)
	_ = running

	after, _ := svc.Open("tenant-1", "int-1", database.SyncEventKindManual)
	testhelpers.AssertNoError(t,
		svc.Close(after.ID, database.SyncEventStatusSuccess, SyncCounts{}, ""), "Close")

	events, err := svc.ListCompletedSince("tenant-1", cutoff)
	testhelpers.AssertNoError(t, err, "ListCompletedSince")
	testhelpers.AssertEqual(t, 1, len(events), "only events completed after the cutoff")
	testhelpers.AssertEqual(t, after.ID, events[0].ID, "matching event")
}
