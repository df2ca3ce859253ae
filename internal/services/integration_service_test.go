package services

import (
	"testing"
	"time"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/testhelpers"
)

func seedIntegration(t *testing.T, svc *IntegrationService, builder *testhelpers.IntegrationBuilder) database.TenantIntegration {
	t.Helper()
	integration := builder.Build()
	db := svc.db
	if err := db.Create(&integration).Error; err != nil {
		t.Fatalf("failed to seed integration: %v", err)
	}
	return integration
}

func TestListActiveSkipsInactive(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewIntegrationService(db)

	seedIntegration(t, svc, testhelpers.NewIntegrationBuilder().WithTenant("tenant-1"))
	seedIntegration(t, svc, testhelpers.NewIntegrationBuilder().WithTenant("tenant-2").Inactive())

	active, err := svc.ListActive()
	testhelpers.AssertNoError(t, err, "ListActive")
	testhelpers.AssertEqual(t, 1, len(active), "only active integrations")
	testhelpers.AssertEqual(t, "tenant-1", active[0].TenantID, "tenant")
}

func TestCreateInactiveStaysInactive(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewIntegrationService(db)

	// The zero value must round-trip: a column default would override a
	// false Active on insert
	integration := seedIntegration(t, svc, testhelpers.NewIntegrationBuilder().Inactive())

	stored, err := svc.GetByID(integration.ID)
	testhelpers.AssertNoError(t, err, "GetByID")
	if stored.Active {
		t.Error("integration created disabled came back active")
	}
}

func TestFindActive(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewIntegrationService(db)

	want := seedIntegration(t, svc, testhelpers.NewIntegrationBuilder().
		WithTenant("tenant-1").WithProvider(database.ProviderIssueTracker))

	got, err := svc.FindActive("tenant-1", database.ProviderIssueTracker)
	testhelpers.AssertNoError(t, err, "FindActive")
	testhelpers.AssertEqual(t, want.ID, got.ID, "integration id")

	_, err = svc.FindActive("tenant-1", database.ProviderChatLog)
	testhelpers.AssertError(t, err, "no integration for that provider")
}

func TestMarkSyncSuccessClearsError(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewIntegrationService(db)

	integration := seedIntegration(t, svc, testhelpers.NewIntegrationBuilder())
	testhelpers.AssertNoError(t, svc.MarkSyncFailure(integration.ID, "token expired"), "MarkSyncFailure")

	syncedAt := time.Now()
	testhelpers.AssertNoError(t, svc.MarkSyncSuccess(integration.ID, syncedAt), "MarkSyncSuccess")

	stored, err := svc.GetByID(integration.ID)
	testhelpers.AssertNoError(t, err, "GetByID")
	testhelpers.AssertEqual(t, database.SyncStatusSuccess, stored.LastSyncStatus, "status")
	testhelpers.AssertEqual(t, "", stored.LastError, "error cleared")
	if stored.LastSyncedAt == nil {
		t.Fatal("expected last_synced_at to be set")
	}
}

func TestMarkSyncFailureKeepsWindow(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewIntegrationService(db)

	syncedAt := time.Now().Add(-time.Hour)
	integration := seedIntegration(t, svc,
		testhelpers.NewIntegrationBuilder().WithLastSyncedAt(syncedAt))

	testhelpers.AssertNoError(t, svc.MarkSyncFailure(integration.ID, "provider down"), "MarkSyncFailure")

	stored, _ := svc.GetByID(integration.ID)
	testhelpers.AssertEqual(t, database.SyncStatusFailed, stored.LastSyncStatus, "status")
	testhelpers.AssertEqual(t, "provider down", stored.LastError, "error recorded")
	if stored.LastSyncedAt == nil {
		t.Fatal("last_synced_at must survive a failure so the window is re-pulled")
	}
}

func TestDeactivate(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewIntegrationService(db)

	integration := seedIntegration(t, svc, testhelpers.NewIntegrationBuilder())
	testhelpers.AssertNoError(t, svc.Deactivate(integration.ID), "Deactivate")

	stored, _ := svc.GetByID(integration.ID)
	if stored.Active {
		t.Error("expected integration to be inactive")
	}
}
