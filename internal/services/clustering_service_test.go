package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/testhelpers"
)

// stubSummarizer returns fixed output or a fixed error
type stubSummarizer struct {
	title   string
	summary string
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(ctx context.Context, reports []database.RawReport) (string, string, error) {
	s.calls++
	if s.err != nil {
		return "", "", s.err
	}
	return s.title, s.summary, nil
}

func unavailableSummarizer() *stubSummarizer {
	return &stubSummarizer{err: ErrSummarizerUnavailable}
}

func newTestClustering(t *testing.T, summarizer Summarizer) (*gorm.DB, *ClusteringService, *ReportService) {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	return db, NewClusteringService(db, summarizer, time.Second), NewReportService(db)
}

func TestReclusterGroupsBySignature(t *testing.T) {
	db, clustering, reports := newTestClustering(t, unavailableSummarizer())

	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t1", "Login fails", "", "", nil)
	reports.Upsert("tenant-1", database.ProviderChatLog, "m1", "login   FAILS", "", "", nil)
	reports.Upsert("tenant-1", database.ProviderIssueTracker, "i1", "Checkout broken", "", "", nil)

	result, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "Recluster")
	testhelpers.AssertEqual(t, 2, result.TotalGroups, "group count")
	testhelpers.AssertEqual(t, 2, result.CreatedGroups, "created groups")

	var groups []database.IssueGroup
	db.Where("tenant_id = ?", "tenant-1").Order("frequency DESC").Find(&groups)
	testhelpers.AssertEqual(t, 2, len(groups), "stored groups")
	testhelpers.AssertEqual(t, 2, groups[0].Frequency, "login group frequency")
	testhelpers.AssertEqual(t, 1, groups[1].Frequency, "checkout group frequency")
}

func TestReclusterIsIdempotent(t *testing.T) {
	db, clustering, reports := newTestClustering(t, unavailableSummarizer())

	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t1", "Login fails", "", "", nil)
	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t2", "Login fails", "", "", nil)

	_, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "first Recluster")

	var before []database.IssueGroup
	db.Order("id ASC").Find(&before)

	result, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "second Recluster")
	testhelpers.AssertEqual(t, 0, result.CreatedGroups, "no new groups on rerun")
	testhelpers.AssertEqual(t, 1, result.UpdatedGroups, "existing group updated")

	var after []database.IssueGroup
	db.Order("id ASC").Find(&after)
	testhelpers.AssertEqual(t, len(before), len(after), "group count unchanged")
	for i := range before {
		testhelpers.AssertEqual(t, before[i].ID, after[i].ID, "group ids stable")
		testhelpers.AssertEqual(t, before[i].Frequency, after[i].Frequency, "frequency stable")
	}
}

func TestReclusterRemovesOrphanedGroups(t *testing.T) {
	db, clustering, reports := newTestClustering(t, unavailableSummarizer())

	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t1", "Old wording", "", "", nil)
	_, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "first Recluster")

	// Re-ingest with different text: the old signature has no members left
	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t1", "Completely new wording", "", "", nil)
	_, err = clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "second Recluster")

	var count int64
	db.Model(&database.IssueGroup{}).Where("tenant_id = ?", "tenant-1").Count(&count)
	testhelpers.AssertEqual(t, int64(1), count, "orphaned group should be deleted")

	var group database.IssueGroup
	db.First(&group, "tenant_id = ?", "tenant-1")
	testhelpers.AssertEqual(t, "Completely new wording", group.Title, "surviving group title")

	// The rewritten report must not keep a stale link to its old group
	var links []database.IssueGroupReport
	db.Find(&links)
	testhelpers.AssertEqual(t, 1, len(links), "single membership row")
	testhelpers.AssertEqual(t, group.ID, links[0].GroupID, "membership points at the surviving group")
}

func TestReclusterFallbackTitleAndSummary(t *testing.T) {
	db, clustering, _ := newTestClustering(t, unavailableSummarizer())

	base := time.Now().Add(-time.Hour)
	sig := Signature("same issue", "")
	for i, body := range []string{"first body", "", "second body", "third body", "fourth body"} {
		report := testhelpers.NewReportBuilder().
			WithExternalID(string(rune('a' + i))).
			WithTitle("same issue").
			WithBody(body).
			WithSignature(sig).
			WithCreatedAt(base.Add(time.Duration(i) * time.Minute)).
			Build()
		if err := db.Create(&report).Error; err != nil {
			t.Fatalf("failed to seed report: %v", err)
		}
	}

	_, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "Recluster")

	var group database.IssueGroup
	db.First(&group, "tenant_id = ?", "tenant-1")
	testhelpers.AssertEqual(t, "same issue", group.Title, "fallback title is the earliest report's")
	testhelpers.AssertEqual(t, "first body | second body | third body", group.Summary,
		"fallback summary joins the first non-empty bodies")
}

func TestReclusterUsesSummarizerOutput(t *testing.T) {
	db, clustering, reports := newTestClustering(t,
		&stubSummarizer{title: "Sign-in outage", summary: "Users cannot sign in."})

	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t1", "Login fails", "", "", nil)

	_, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "Recluster")

	var group database.IssueGroup
	db.First(&group, "tenant_id = ?", "tenant-1")
	testhelpers.AssertEqual(t, "Sign-in outage", group.Title, "summarizer title")
	testhelpers.AssertEqual(t, "Users cannot sign in.", group.Summary, "summarizer summary")
}

func TestReclusterFallsBackOnSummarizerFailure(t *testing.T) {
	db, clustering, reports := newTestClustering(t,
		&stubSummarizer{err: errors.New("upstream 500")})

	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t1", "Login fails", "details", "", nil)

	_, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "Recluster must not fail when the summarizer does")

	var group database.IssueGroup
	db.First(&group, "tenant_id = ?", "tenant-1")
	testhelpers.AssertEqual(t, "Login fails", group.Title, "fallback title")
}

func TestReclusterSourceRollupAndLastSeen(t *testing.T) {
	db, clustering, _ := newTestClustering(t, unavailableSummarizer())

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	sig := "fixedsig"
	seed := []struct {
		provider database.Provider
		id       string
		at       time.Time
	}{
		{database.ProviderCRMTicket, "a", base},
		{database.ProviderCRMTicket, "b", base.Add(10 * time.Minute)},
		{database.ProviderChatLog, "c", base.Add(20 * time.Minute)},
	}
	for _, s := range seed {
		report := testhelpers.NewReportBuilder().
			WithProvider(s.provider).
			WithExternalID(s.id).
			WithTitle("same issue").
			WithSignature(sig).
			WithCreatedAt(s.at).
			Build()
		if err := db.Create(&report).Error; err != nil {
			t.Fatalf("failed to seed report: %v", err)
		}
	}

	_, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "Recluster")

	var group database.IssueGroup
	db.First(&group, "tenant_id = ?", "tenant-1")
	testhelpers.AssertEqual(t, 3, group.Frequency, "frequency")
	testhelpers.AssertEqual(t, 2, len(group.Sources), "distinct providers")
	testhelpers.AssertEqual(t, database.ProviderCRMTicket, group.Sources[0].Provider, "first provider")
	testhelpers.AssertEqual(t, 2, group.Sources[0].Count, "crm count")
	testhelpers.AssertEqual(t, 1, group.Sources[1].Count, "chat count")

	if group.LastSeenAt == nil {
		t.Fatal("expected last_seen_at to be set")
	}
	if diff := group.LastSeenAt.Sub(base.Add(20 * time.Minute)); diff < -time.Second || diff > time.Second {
		t.Errorf("expected last_seen_at near the newest member, diff %v", diff)
	}
}

func TestReclusterScopedToTenant(t *testing.T) {
	db, clustering, reports := newTestClustering(t, unavailableSummarizer())

	reports.Upsert("tenant-1", database.ProviderCRMTicket, "t1", "Login fails", "", "", nil)
	reports.Upsert("tenant-2", database.ProviderCRMTicket, "t1", "Login fails", "", "", nil)

	_, err := clustering.Recluster(context.Background(), "tenant-1")
	testhelpers.AssertNoError(t, err, "Recluster")

	var count int64
	db.Model(&database.IssueGroup{}).Where("tenant_id = ?", "tenant-2").Count(&count)
	testhelpers.AssertEqual(t, int64(0), count, "other tenants untouched")
}
