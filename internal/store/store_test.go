package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// createTestStore opens a store in a temp directory. A file is used instead
// of :memory: so WAL mode and the busy timeout behave as in production.
func createTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestRun(t *testing.T, s *SQLStore, id string, regions ...string) {
	t.Helper()
	run := models.ScanRun{
		ID:                 id,
		CreatedAt:          t0,
		Status:             models.RunPending,
		RegionScope:        regions,
		CallerIdentity:     map[string]string{"Account": "123456789012"},
		MinimalPermissions: map[string]bool{"sts:GetCallerIdentity": true},
	}
	require.NoError(t, s.CreateScan(context.Background(), run, regions))
}

func strp(s string) *string { return &s }

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var mode string
	require.NoError(t, s2.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestCreateScan_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "scan-1", "us-east-1", "GLOBAL")

	run, err := s.GetRun(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)
	assert.Equal(t, []string{"us-east-1", "GLOBAL"}, run.RegionScope)
	assert.Equal(t, "123456789012", run.CallerIdentity["Account"])
	assert.True(t, run.CreatedAt.Equal(t0))

	regions, err := s.ListRegions(ctx, "scan-1")
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "us-east-1", regions[0].Region)
	assert.Equal(t, models.RegionPending, regions[0].Status)
	assert.Nil(t, regions[0].StartedAt)
	assert.Nil(t, regions[0].Error)
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetRunStatus(context.Background(), "missing", models.RunFailed), ErrNotFound)
}

func TestEnsureRegions_SkipsExisting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "scan-1", "GLOBAL")

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CompleteRegion(ctx, "scan-1", "GLOBAL", t0))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.EnsureRegions(ctx, "scan-1", []string{"GLOBAL", "eu-west-1"}))

	regions, err := s.ListRegions(ctx, "scan-1")
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, models.RegionCompleted, regions[0].Status, "existing row untouched")
	assert.Equal(t, models.RegionPending, regions[1].Status)
}

func TestRegionTransaction_CommitAndRollback(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "scan-1", "us-east-1", "GLOBAL")

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.MarkRunRunning(ctx, "scan-1"))
	require.NoError(t, tx.MarkRegionRunning(ctx, "scan-1", "us-east-1", t0))
	require.NoError(t, tx.Commit())

	run, err := s.GetRun(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)

	// A rolled back transaction leaves no findings behind.
	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertFindings(ctx, []models.Finding{{
		ID: "f-rolled-back", ScanID: "scan-1", Service: "EC2", RuleID: "R", Severity: "HIGH",
		Status: "FAIL", Evidence: map[string]any{}, ResourceHash: "h", CreatedAt: t0,
	}}))
	require.NoError(t, tx.Rollback())

	findings, err := s.ListFindings(ctx, "scan-1", FindingFilter{})
	require.NoError(t, err)
	assert.Empty(t, findings)

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.FailRegion(ctx, "scan-1", "us-east-1", "describe security groups: AccessDenied", t0.Add(time.Minute)))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	regions, err := s.ListRegions(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegionFailed, regions[0].Status)
	require.NotNil(t, regions[0].Error)
	assert.Contains(t, *regions[0].Error, "AccessDenied")
	require.NotNil(t, regions[0].FinishedAt)

	counts, err := s.RegionCounts(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, map[models.RegionStatus]int{models.RegionFailed: 1, models.RegionPending: 1}, counts)
}

func TestMarkRunRunning_OnlyFromPending(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "scan-1", "GLOBAL")
	require.NoError(t, s.SetRunStatus(ctx, "scan-1", models.RunPartial))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.MarkRunRunning(ctx, "scan-1"))
	require.NoError(t, tx.Commit())

	run, err := s.GetRun(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, run.Status)
}

func TestListFindings_OrderAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "scan-1", "eu-west-1", "GLOBAL")

	findings := []models.Finding{
		{ID: "f3", ScanID: "scan-1", Service: "EC2", RuleID: "EC2_SG_SSH_OPEN", Severity: models.SeverityHigh, Status: "FAIL",
			Evidence: map[string]any{"exposures": []any{map[string]any{"from_port": 22}}}, Region: strp("eu-west-1"), ResourceHash: "a", CreatedAt: t0},
		{ID: "f1", ScanID: "scan-1", Service: "COMMON", RuleID: "S3_BUCKET_ENCRYPTION", Severity: models.SeverityMedium, Status: "FAIL",
			Evidence: map[string]any{"bucket_region": "eu-west-1"}, ResourceHash: "b", CreatedAt: t0},
		{ID: "f2", ScanID: "scan-1", Service: "EC2", RuleID: "EC2_EBS_ENCRYPTION", Severity: models.SeverityMedium, Status: "FAIL",
			Evidence: map[string]any{}, Region: strp("eu-west-1"), ResourceHash: "c", CreatedAt: t0},
	}
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertFindings(ctx, findings))
	require.NoError(t, tx.Commit())

	all, err := s.ListFindings(ctx, "scan-1", FindingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"f3", "f1", "f2"}, []string{all[0].ID, all[1].ID, all[2].ID}, "insertion order, not id order")
	assert.Nil(t, all[1].Region, "global finding has no region")
	assert.Equal(t, "eu-west-1", *all[0].Region)
	assert.Equal(t, float64(22), all[0].Evidence["exposures"].([]any)[0].(map[string]any)["from_port"])

	ec2, err := s.ListFindings(ctx, "scan-1", FindingFilter{Service: "EC2", Severity: "MEDIUM"})
	require.NoError(t, err)
	require.Len(t, ec2, 1)
	assert.Equal(t, "f2", ec2[0].ID)
}

func TestFailOpenRegions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "scan-1", "us-east-1", "eu-west-1", "GLOBAL")

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CompleteRegion(ctx, "scan-1", "GLOBAL", t0))
	require.NoError(t, tx.MarkRegionRunning(ctx, "scan-1", "eu-west-1", t0))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.FailOpenRegions(ctx, "scan-1", "credentials expired or missing", t0))

	counts, err := s.RegionCounts(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.RegionFailed])
	assert.Equal(t, 1, counts[models.RegionCompleted])
}

func TestAdvice_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "scan-1", "GLOBAL")
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertFindings(ctx, []models.Finding{{
		ID: "f1", ScanID: "scan-1", Service: "IAM", RuleID: "IAM_USER_NO_MFA", Severity: models.SeverityHigh,
		Status: "HIGH", Evidence: map[string]any{}, ResourceHash: "h", CreatedAt: t0,
	}}))
	require.NoError(t, tx.Commit())

	_, err = s.GetAdvice(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveAdvice(ctx, models.Advice{ID: "a1", FindingID: "f1", Model: "m", PromptHash: "p1", ContentMD: "first", CreatedAt: t0}))
	require.NoError(t, s.SaveAdvice(ctx, models.Advice{ID: "a2", FindingID: "f1", Model: "m", PromptHash: "p2", ContentMD: "second", CreatedAt: t0}))

	a, err := s.GetAdvice(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "second", a.ContentMD)
	assert.Equal(t, "a1", a.ID, "at most one advice row per finding")
}

func TestRuleCatalog_SyncAndList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rules := []models.Rule{
		{ID: "EC2_SG_SSH_OPEN", Service: "EC2", Title: "SSH open", Severity: models.SeverityHigh,
			References: []models.Reference{{Title: "docs", URL: "https://example.com"}}},
		{ID: "S3_BUCKET_ENCRYPTION", Service: "COMMON", Title: "Bucket encryption", Severity: models.SeverityMedium},
	}
	require.NoError(t, s.SyncRuleCatalog(ctx, rules))
	rules[0].Title = "SSH open to the world"
	require.NoError(t, s.SyncRuleCatalog(ctx, rules))

	all, err := s.ListRuleCatalog(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "SSH open to the world", all[0].Title)
	assert.Equal(t, "https://example.com", all[0].Docs[0].URL)

	ec2, err := s.ListRuleCatalog(ctx, "ec2")
	require.NoError(t, err)
	require.Len(t, ec2, 1)
}

// Region workers for the same scan run concurrently; every transaction must
// land without SQLITE_BUSY errors.
func TestConcurrentRegionTransactions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	regions := []string{"us-east-1", "us-east-2", "us-west-1", "us-west-2", "eu-west-1", "GLOBAL"}
	createTestRun(t, s, "scan-1", regions...)

	var wg sync.WaitGroup
	errs := make(chan error, len(regions))
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region string) {
			defer wg.Done()
			tx, err := s.BeginTx(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer tx.Rollback()
			if err := tx.InsertFindings(ctx, []models.Finding{{
				ID: region + "-f", ScanID: "scan-1", Service: "EC2", RuleID: "R", Severity: models.SeverityLow,
				Status: "WARN", Evidence: map[string]any{"i": i}, Region: strp(region), ResourceHash: "h", CreatedAt: t0,
			}}); err != nil {
				errs <- err
				return
			}
			if err := tx.CompleteRegion(ctx, "scan-1", region, t0); err != nil {
				errs <- err
				return
			}
			errs <- tx.Commit()
		}(i, region)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts, err := s.RegionCounts(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, len(regions), counts[models.RegionCompleted])
}
