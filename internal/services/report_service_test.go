package services

import (
	"testing"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/testhelpers"
)

func TestSignatureIgnoresCaseAndWhitespace(t *testing.T) {
	a := Signature("Login fails", "")
	b := Signature("login   FAILS", "")
	if a != b {
		t.Errorf("expected identical signatures, got %q and %q", a, b)
	}
	if len(a) != signatureLen {
		t.Errorf("expected signature length %d, got %d", signatureLen, len(a))
	}

	c := Signature("Password reset broken", "")
	if c == a {
		t.Error("different text should produce a different signature")
	}
}

func TestSignatureCombinesTitleAndBody(t *testing.T) {
	withBody := Signature("Checkout error", "payment declined")
	withoutBody := Signature("Checkout error", "")
	if withBody == withoutBody {
		t.Error("body should contribute to the signature")
	}
}

func TestSignatureTruncatesLongText(t *testing.T) {
	prefix := ""
	for i := 0; i < 30; i++ {
		prefix += "padding123 "
	}
	a := Signature(prefix+"tail one", "")
	b := Signature(prefix+"tail two", "")
	if a != b {
		t.Error("text differing only past the truncation point should share a signature")
	}
}

func TestUpsertCreatesNewReport(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewReportService(db)

	report, created, err := svc.Upsert("tenant-1", database.ProviderCRMTicket,
		"tick-1", "Login fails", "cannot log in", "https://crm.example/tick-1", nil)
	testhelpers.AssertNoError(t, err, "Upsert")
	if !created {
		t.Error("expected created=true for a new report")
	}
	if report.ID == "" {
		t.Error("expected report to get an id")
	}
	if report.Signature == "" {
		t.Error("expected signature to be set")
	}
}

func TestUpsertUpdatesExistingInPlace(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewReportService(db)

	first, _, err := svc.Upsert("tenant-1", database.ProviderCRMTicket,
		"tick-1", "Login fails", "old body", "", nil)
	testhelpers.AssertNoError(t, err, "first Upsert")

	second, created, err := svc.Upsert("tenant-1", database.ProviderCRMTicket,
		"tick-1", "Login fails badly", "new body", "https://crm.example/tick-1", nil)
	testhelpers.AssertNoError(t, err, "second Upsert")
	if created {
		t.Error("expected created=false when re-ingesting the same external id")
	}
	if second.ID != first.ID {
		t.Errorf("expected the same row to be updated, got ids %s and %s", first.ID, second.ID)
	}

	var count int64
	db.Model(&database.RawReport{}).Count(&count)
	testhelpers.AssertEqual(t, int64(1), count, "report count")

	var stored database.RawReport
	db.First(&stored, "id = ?", first.ID)
	testhelpers.AssertEqual(t, "Login fails badly", stored.Title, "updated title")
	testhelpers.AssertEqual(t, "new body", stored.Body, "updated body")
	if stored.Signature == first.Signature {
		t.Error("expected signature to be recomputed after the text changed")
	}
}

func TestUpsertCarriesProviderMetadata(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewReportService(db)

	meta := database.JSONB{"status": "open", "reporter": "ada@example.com"}
	report, _, err := svc.Upsert("tenant-1", database.ProviderCRMTicket,
		"tick-1", "Login fails", "", "", meta)
	testhelpers.AssertNoError(t, err, "Upsert")

	var stored database.RawReport
	db.First(&stored, "id = ?", report.ID)
	testhelpers.AssertEqual(t, "open", stored.Metadata["status"].(string), "metadata status")

	// Re-ingestion with nil metadata keeps what is already stored
	svc.Upsert("tenant-1", database.ProviderCRMTicket, "tick-1", "Login fails", "new body", "", nil)
	db.First(&stored, "id = ?", report.ID)
	testhelpers.AssertEqual(t, "ada@example.com", stored.Metadata["reporter"].(string), "metadata kept")

	// Re-ingestion with fresh metadata replaces it
	svc.Upsert("tenant-1", database.ProviderCRMTicket, "tick-1", "Login fails", "new body", "",
		database.JSONB{"status": "closed"})
	db.First(&stored, "id = ?", report.ID)
	testhelpers.AssertEqual(t, "closed", stored.Metadata["status"].(string), "metadata replaced")
}

func TestUpsertScopesDedupByTenantAndProvider(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewReportService(db)

	svc.Upsert("tenant-1", database.ProviderCRMTicket, "item-1", "A", "", "", nil)
	svc.Upsert("tenant-2", database.ProviderCRMTicket, "item-1", "A", "", "", nil)
	svc.Upsert("tenant-1", database.ProviderIssueTracker, "item-1", "A", "", "", nil)

	var count int64
	db.Model(&database.RawReport{}).Count(&count)
	testhelpers.AssertEqual(t, int64(3), count, "same external id in other scopes should not collide")
}

func TestUpsertWithoutExternalIDAlwaysCreates(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewReportService(db)

	svc.Upsert("tenant-1", database.ProviderChatLog, "", "hello", "", "", nil)
	svc.Upsert("tenant-1", database.ProviderChatLog, "", "hello", "", "", nil)

	var count int64
	db.Model(&database.RawReport{}).Count(&count)
	testhelpers.AssertEqual(t, int64(2), count, "reports without external id never dedup")
}

func TestSyntheticExternalID(t *testing.T) {
	id := SyntheticExternalID("C01ABC", "1712000000.000100")
	testhelpers.AssertEqual(t, "C01ABC:1712000000.000100", id, "synthetic id")
}

func TestListByGroupReturnsMembers(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	svc := NewReportService(db)

	r1, _, _ := svc.Upsert("tenant-1", database.ProviderCRMTicket, "a", "one", "", "", nil)
	r2, _, _ := svc.Upsert("tenant-1", database.ProviderCRMTicket, "b", "two", "", "", nil)
	svc.Upsert("tenant-1", database.ProviderCRMTicket, "c", "three", "", "", nil)

	group := database.IssueGroup{TenantID: "tenant-1", Signature: "sig", Title: "one"}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	db.Create(&database.IssueGroupReport{GroupID: group.ID, ReportID: r1.ID})
	db.Create(&database.IssueGroupReport{GroupID: group.ID, ReportID: r2.ID})

	members, err := svc.ListByGroup(group.ID)
	testhelpers.AssertNoError(t, err, "ListByGroup")
	testhelpers.AssertEqual(t, 2, len(members), "member count")
}
