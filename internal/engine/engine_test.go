package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/securescope/internal/catalog"
	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/securescope/internal/rules"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
	"github.com/pankaj-dahiya-devops/securescope/internal/vault"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeCollector struct {
	service string
	typ     string
	records []models.ResourceRecord
	err     error
}

func (c fakeCollector) Service() string      { return c.service }
func (c fakeCollector) ResourceType() string { return c.typ }
func (c fakeCollector) Collect(context.Context) ([]models.ResourceRecord, error) {
	return c.records, c.err
}

type fakeProvider struct {
	validateErr error
	active      []string
	collectors  map[string][]common.Collector
}

func (p *fakeProvider) ValidateCredentials(context.Context, models.Credential) (*common.Validation, error) {
	if p.validateErr != nil {
		return nil, p.validateErr
	}
	return &common.Validation{
		Identity:    map[string]string{"Account": "123456789012", "Arn": "arn:aws:iam::123456789012:user/a", "UserId": "AID"},
		Permissions: map[string]bool{common.PermGetCallerIdentity: true, common.PermListClusters: false},
	}, nil
}

func (p *fakeProvider) ActiveRegions(context.Context, models.Credential) ([]string, error) {
	return p.active, nil
}

func (p *fakeProvider) Collectors(_ context.Context, _ models.Credential, region string) ([]common.Collector, error) {
	return p.collectors[region], nil
}

type captureDispatcher struct {
	mu   sync.Mutex
	jobs []dispatch.Job
	err  error
}

func (d *captureDispatcher) Enqueue(_ context.Context, job dispatch.Job) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

type captureEnricher struct {
	mu      sync.Mutex
	batches [][]models.Finding
	err     error
}

func (e *captureEnricher) Enrich(_ context.Context, findings []models.Finding) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, findings)
	return e.err
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const testCatalogEC2 = `
- id: EC2_EBS_UNENCRYPTED
  service: EC2
  title: EBS volume is not encrypted
  severity: HIGH
  evaluation:
    evaluator: ec2.volume_encryption_rule
`

const testCatalogCommon = `
- id: COMMON_S3_ENCRYPTION
  service: COMMON
  title: Bucket default encryption disabled
  severity: MEDIUM
  evaluation:
    evaluator: common.bucket_encryption_rule
`

type harness struct {
	orch       *Orchestrator
	store      *store.SQLStore
	vault      *vault.Memory
	provider   *fakeProvider
	dispatcher *captureDispatcher
	enricher   *captureEnricher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	loader := catalog.New(fstest.MapFS{
		"ec2.yaml":    {Data: []byte(testCatalogEC2)},
		"common.yaml": {Data: []byte(testCatalogCommon)},
	})

	h := &harness{
		store:      st,
		vault:      vault.NewMemory(),
		provider:   &fakeProvider{collectors: map[string][]common.Collector{}},
		dispatcher: &captureDispatcher{},
		enricher:   &captureEnricher{},
	}
	h.orch = New(Options{
		Provider:   h.provider,
		Store:      st,
		Vault:      h.vault,
		Dispatcher: h.dispatcher,
		Evaluator:  rules.NewEvaluator(loader, rules.NewDefaultRegistry(), zerolog.Nop()),
		Rules:      loader,
		Enricher:   h.enricher,
		Logger:     zerolog.Nop(),
	})
	return h
}

func unencryptedVolume(id, region string) models.ResourceRecord {
	return models.ResourceRecord{"id": id, "type": "ebs_volume", "region": region, "encrypted": false}
}

func plainBucket(id string) models.ResourceRecord {
	return models.ResourceRecord{"id": id, "type": "s3_bucket", "region": "eu-west-1", "encryption_enabled": false}
}

var testCred = models.Credential{AccessKeyID: "AKIA", SecretAccessKey: "secret"}

// start runs StartScan and returns the queued job.
func (h *harness) start(t *testing.T, regions ...string) dispatch.Job {
	t.Helper()
	id, err := h.orch.StartScan(context.Background(), ScanRequest{Credential: testCred, Regions: regions})
	require.NoError(t, err)
	require.NotEmpty(t, h.dispatcher.jobs)
	job := h.dispatcher.jobs[len(h.dispatcher.jobs)-1]
	require.Equal(t, id, job.ScanID)
	return job
}

func regionStatuses(t *testing.T, h *harness, scanID string) map[string]models.RegionProgress {
	t.Helper()
	status, err := h.orch.GetStatus(context.Background(), scanID)
	require.NoError(t, err)
	out := make(map[string]models.RegionProgress)
	for _, r := range status.Regions {
		out[r.Region] = r
	}
	return out
}

// ---------------------------------------------------------------------------
// StartScan
// ---------------------------------------------------------------------------

func TestStartScan_PersistsPendingRunAndQueuesJob(t *testing.T) {
	h := newHarness(t)
	job := h.start(t, "us-east-1", " eu-west-1 ", "us-east-1")

	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, job.RegionScope)

	run, err := h.store.GetRun(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)
	assert.Equal(t, "123456789012", run.CallerIdentity["Account"])
	assert.False(t, run.MinimalPermissions[common.PermListClusters])

	regions := regionStatuses(t, h, job.ScanID)
	assert.Len(t, regions, 2)
	assert.Equal(t, models.RegionPending, regions["us-east-1"].Status)

	cred, ok, err := h.vault.Retrieve(context.Background(), job.VaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AKIA", cred.AccessKeyID)
}

func TestStartScan_AllScopeSeedsGlobalOnly(t *testing.T) {
	h := newHarness(t)
	job := h.start(t)

	assert.Equal(t, []string{models.ScopeAll}, job.RegionScope)
	regions := regionStatuses(t, h, job.ScanID)
	assert.Len(t, regions, 1)
	assert.Contains(t, regions, models.GlobalRegion)
}

func TestStartScan_ValidationFailure(t *testing.T) {
	h := newHarness(t)
	h.provider.validateErr = errors.New("InvalidClientTokenId")

	_, err := h.orch.StartScan(context.Background(), ScanRequest{Credential: testCred})

	var cve *CredentialValidationError
	require.ErrorAs(t, err, &cve)
	assert.Contains(t, err.Error(), "InvalidClientTokenId")
	assert.Empty(t, h.dispatcher.jobs)
}

func TestStartScan_EnqueueFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = dispatch.ErrQueueFull

	_, err := h.orch.StartScan(context.Background(), ScanRequest{Credential: testCred, Regions: []string{"us-east-1"}})
	assert.ErrorIs(t, err, dispatch.ErrQueueFull)
}

// ---------------------------------------------------------------------------
// ExecuteScan
// ---------------------------------------------------------------------------

func TestExecuteScan_PartialFailureStillSettles(t *testing.T) {
	h := newHarness(t)
	h.provider.collectors["us-east-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", records: []models.ResourceRecord{
			unencryptedVolume("vol-1", "us-east-1"),
			{"id": "vol-2", "type": "ebs_volume", "region": "us-east-1", "encrypted": true},
		}},
	}
	h.provider.collectors["eu-west-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", err: errors.New("RequestLimitExceeded")},
	}
	h.provider.collectors[models.GlobalRegion] = []common.Collector{
		fakeCollector{service: common.ServiceCommon, typ: "s3_bucket", records: []models.ResourceRecord{plainBucket("logs")}},
	}

	job := h.start(t, "us-east-1", "eu-west-1")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	status, err := h.orch.GetStatus(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, status.Status)

	regions := regionStatuses(t, h, job.ScanID)
	require.Len(t, regions, 3)
	assert.Equal(t, models.RegionCompleted, regions["us-east-1"].Status)
	assert.Equal(t, models.RegionCompleted, regions[models.GlobalRegion].Status)
	assert.Equal(t, models.RegionFailed, regions["eu-west-1"].Status)
	require.NotNil(t, regions["eu-west-1"].Error)
	assert.Contains(t, *regions["eu-west-1"].Error, "RequestLimitExceeded")
	assert.NotNil(t, regions["us-east-1"].StartedAt)
	assert.NotNil(t, regions["us-east-1"].FinishedAt)

	findings, err := h.orch.ListFindings(context.Background(), job.ScanID, store.FindingFilter{})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	for _, f := range findings {
		switch f.RuleID {
		case "EC2_EBS_UNENCRYPTED":
			require.NotNil(t, f.Region)
			assert.Equal(t, "us-east-1", *f.Region)
			assert.Equal(t, rules.ResourceHash("vol-1"), f.ResourceHash)
		case "COMMON_S3_ENCRYPTION":
			assert.Nil(t, f.Region, "global findings carry no region")
			assert.NotEqual(t, "logs", f.ResourceHash)
		default:
			t.Fatalf("unexpected rule %s", f.RuleID)
		}
	}

	_, ok, err := h.vault.Retrieve(context.Background(), job.VaultKey)
	require.NoError(t, err)
	assert.False(t, ok, "credential must be revoked after execution")

	assert.Len(t, h.enricher.batches, 2, "one enrichment batch per region with findings")
}

func TestExecuteScan_AllRegionsComplete(t *testing.T) {
	h := newHarness(t)
	h.provider.collectors["us-west-2"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", records: []models.ResourceRecord{unencryptedVolume("vol-9", "us-west-2")}},
	}

	job := h.start(t, "us-west-2")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	summary, err := h.orch.GetSummary(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, summary.Status)
	assert.Equal(t, 1, summary.TotalFindings)
	assert.Equal(t, map[string]int{"HIGH": 1}, summary.SeverityTotals)
	assert.Equal(t, map[string]int{"EC2": 1}, summary.ServiceTotals)
}

func TestExecuteScan_AllRegionsFail(t *testing.T) {
	h := newHarness(t)
	boom := fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", err: errors.New("AccessDenied")}
	h.provider.collectors["us-west-2"] = []common.Collector{boom}
	h.provider.collectors[models.GlobalRegion] = []common.Collector{boom}

	job := h.start(t, "us-west-2")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	status, err := h.orch.GetStatus(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, status.Status)
}

func TestExecuteScan_AllScopeUsesActiveRegions(t *testing.T) {
	h := newHarness(t)
	h.provider.active = []string{"ap-south-1", "eu-north-1"}

	job := h.start(t, "all")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	regions := regionStatuses(t, h, job.ScanID)
	assert.Len(t, regions, 3)
	for name, r := range regions {
		assert.Equal(t, models.RegionCompleted, r.Status, name)
	}
}

func TestExecuteScan_CredentialExpired(t *testing.T) {
	h := newHarness(t)
	job := h.start(t, "us-east-1")
	require.NoError(t, h.vault.Revoke(context.Background(), job.VaultKey))

	err := h.orch.ExecuteScan(context.Background(), job)
	require.ErrorIs(t, err, ErrCredentialExpired)

	status, err := h.orch.GetStatus(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, status.Status)
	require.Len(t, status.Regions, 1)
	assert.Equal(t, models.RegionFailed, status.Regions[0].Status)
	require.NotNil(t, status.Regions[0].Error)
	assert.Equal(t, "credentials expired or missing", *status.Regions[0].Error)
}

func TestExecuteScan_RetryDoesNotDuplicateFindings(t *testing.T) {
	h := newHarness(t)
	h.provider.collectors["us-east-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", records: []models.ResourceRecord{unencryptedVolume("vol-1", "us-east-1")}},
	}
	job := h.start(t, "us-east-1")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	// A worker that died before settling leaves the run RUNNING.
	require.NoError(t, h.store.SetRunStatus(context.Background(), job.ScanID, models.RunRunning))
	key, err := h.vault.Store(context.Background(), testCred, 0)
	require.NoError(t, err)
	job.VaultKey = key
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	findings, err := h.orch.ListFindings(context.Background(), job.ScanID, store.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, findings, 1)

	status, err := h.orch.GetStatus(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, status.Status)
}

func TestExecuteScan_RedeliveredJobKeepsFinishedStatus(t *testing.T) {
	h := newHarness(t)
	h.provider.collectors["us-east-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", records: []models.ResourceRecord{unencryptedVolume("vol-1", "us-east-1")}},
	}
	h.provider.collectors["eu-west-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", err: errors.New("RequestLimitExceeded")},
	}
	h.provider.collectors[models.GlobalRegion] = []common.Collector{
		fakeCollector{service: common.ServiceCommon, typ: "s3_bucket", records: []models.ResourceRecord{plainBucket("logs")}},
	}

	job := h.start(t, "us-east-1", "eu-west-1")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	// Same job again: the vault key is already revoked.
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	run, err := h.store.GetRun(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, run.Status)

	regions := regionStatuses(t, h, job.ScanID)
	assert.Equal(t, models.RegionCompleted, regions["us-east-1"].Status)
	assert.Equal(t, models.RegionFailed, regions["eu-west-1"].Status)

	findings, err := h.orch.ListFindings(context.Background(), job.ScanID, store.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, findings, 2)
}

func TestAbort_KeepsSettledRunStatus(t *testing.T) {
	h := newHarness(t)
	h.provider.collectors["us-east-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", records: []models.ResourceRecord{unencryptedVolume("vol-1", "us-east-1")}},
	}
	job := h.start(t, "us-east-1")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	h.orch.abort(context.Background(), job.ScanID, "late failure")

	run, err := h.store.GetRun(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	for region, r := range regionStatuses(t, h, job.ScanID) {
		assert.Equal(t, models.RegionCompleted, r.Status, region)
		assert.Nil(t, r.Error, region)
	}
}

// listFailingStore fails ListRegions so the scan cannot tell which regions
// are still open.
type listFailingStore struct {
	store.Store
	err error
}

func (s listFailingStore) ListRegions(context.Context, string) ([]models.ScanRegion, error) {
	return nil, s.err
}

func TestExecuteScan_RegionReadFailureAbortsRun(t *testing.T) {
	h := newHarness(t)
	job := h.start(t, "us-east-1")

	orch := New(Options{
		Provider:   h.provider,
		Store:      listFailingStore{Store: h.store, err: errors.New("disk I/O error")},
		Vault:      h.vault,
		Dispatcher: h.dispatcher,
		Evaluator:  h.orch.evaluator,
		Rules:      h.orch.rules,
		Enricher:   h.enricher,
		Logger:     zerolog.Nop(),
	})
	err := orch.ExecuteScan(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	run, err := h.store.GetRun(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)

	_, ok, err := h.vault.Retrieve(context.Background(), job.VaultKey)
	require.NoError(t, err)
	assert.False(t, ok, "credential revoked after abort")
}

func TestAbandonScan_FailsRunAndRevokesKey(t *testing.T) {
	h := newHarness(t)
	job := h.start(t, "us-east-1", "eu-west-1")

	h.orch.AbandonScan(context.Background(), job)

	run, err := h.store.GetRun(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)

	for region, r := range regionStatuses(t, h, job.ScanID) {
		assert.Equal(t, models.RegionFailed, r.Status, region)
		require.NotNil(t, r.Error, region)
		assert.Equal(t, "scan dropped on shutdown", *r.Error)
	}

	_, ok, err := h.vault.Retrieve(context.Background(), job.VaultKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecuteScan_EnrichmentErrorDoesNotFailRegion(t *testing.T) {
	h := newHarness(t)
	h.enricher.err = errors.New("llm down")
	h.provider.collectors["us-east-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", records: []models.ResourceRecord{unencryptedVolume("vol-1", "us-east-1")}},
	}

	job := h.start(t, "us-east-1")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	regions := regionStatuses(t, h, job.ScanID)
	assert.Equal(t, models.RegionCompleted, regions["us-east-1"].Status)
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

func TestExportScan(t *testing.T) {
	h := newHarness(t)
	h.provider.collectors[models.GlobalRegion] = []common.Collector{
		fakeCollector{service: common.ServiceCommon, typ: "s3_bucket", records: []models.ResourceRecord{plainBucket("logs")}},
	}
	job := h.start(t, "us-east-1")
	require.NoError(t, h.orch.ExecuteScan(context.Background(), job))

	js, err := h.orch.ExportScan(context.Background(), job.ScanID, "json")
	require.NoError(t, err)
	require.NotNil(t, js.Data)
	assert.Equal(t, job.ScanID, js.Data.ScanID)
	require.Len(t, js.Data.Findings, 1)
	assert.Equal(t, "COMMON_S3_ENCRYPTION", js.Data.Findings[0].RuleID)

	summary, err := h.orch.GetSummary(context.Background(), job.ScanID)
	require.NoError(t, err)
	assert.Equal(t, *summary, js.Data.Summary, "export and summary share one projection")

	md, err := h.orch.ExportScan(context.Background(), job.ScanID, "md")
	require.NoError(t, err)
	assert.Contains(t, md.Markdown, "# Scan "+job.ScanID)
	assert.Contains(t, md.Markdown, "### COMMON_S3_ENCRYPTION (COMMON)")
	assert.Contains(t, md.Markdown, "Region: global")
}

func TestExportScan_IncludesCatalogTitleAndAdvice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rules, err := h.orch.ListRules("")
	require.NoError(t, err)
	require.NoError(t, h.store.SyncRuleCatalog(ctx, rules))

	h.provider.collectors["us-east-1"] = []common.Collector{
		fakeCollector{service: common.ServiceEC2, typ: "ebs_volume", records: []models.ResourceRecord{unencryptedVolume("vol-1", "us-east-1")}},
	}
	h.provider.collectors[models.GlobalRegion] = []common.Collector{
		fakeCollector{service: common.ServiceCommon, typ: "s3_bucket", records: []models.ResourceRecord{plainBucket("logs")}},
	}
	job := h.start(t, "us-east-1")
	require.NoError(t, h.orch.ExecuteScan(ctx, job))

	findings, err := h.orch.ListFindings(ctx, job.ScanID, store.FindingFilter{Service: "COMMON"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.NoError(t, h.store.SaveAdvice(ctx, models.Advice{
		ID: "a1", FindingID: findings[0].ID, Model: "m", PromptHash: "p", ContentMD: "Turn on SSE-S3.",
	}))

	js, err := h.orch.ExportScan(ctx, job.ScanID, "json")
	require.NoError(t, err)
	byRule := make(map[string]models.ExportFinding)
	for _, f := range js.Data.Findings {
		byRule[f.RuleID] = f
	}
	require.Len(t, byRule, 2)
	assert.Equal(t, "Bucket default encryption disabled", byRule["COMMON_S3_ENCRYPTION"].Title)
	require.NotNil(t, byRule["COMMON_S3_ENCRYPTION"].Advice)
	assert.Equal(t, "Turn on SSE-S3.", *byRule["COMMON_S3_ENCRYPTION"].Advice)
	assert.Equal(t, "EBS volume is not encrypted", byRule["EC2_EBS_UNENCRYPTED"].Title)
	assert.Nil(t, byRule["EC2_EBS_UNENCRYPTED"].Advice)

	md, err := h.orch.ExportScan(ctx, job.ScanID, "md")
	require.NoError(t, err)
	assert.Contains(t, md.Markdown, "Title: Bucket default encryption disabled")
	assert.Contains(t, md.Markdown, "Remediation:\n\nTurn on SSE-S3.")
}

func TestExportScan_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.ExportScan(context.Background(), "missing", "pdf")
	var ufe *UnsupportedExportFormatError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, "pdf", ufe.Format)

	_, err = h.orch.ExportScan(context.Background(), "missing", "json")
	assert.ErrorIs(t, err, ErrScanNotFound)

	_, err = h.orch.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrScanNotFound)

	_, err = h.orch.ListFindings(context.Background(), "missing", store.FindingFilter{})
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestListRules(t *testing.T) {
	h := newHarness(t)

	all, err := h.orch.ListRules("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ec2, err := h.orch.ListRules("EC2")
	require.NoError(t, err)
	require.Len(t, ec2, 1)
	assert.Equal(t, "EC2_EBS_UNENCRYPTED", ec2[0].ID)

	none, err := h.orch.ListRules("lambda")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ---------------------------------------------------------------------------
// Pure helpers
// ---------------------------------------------------------------------------

func TestAggregateRunStatus(t *testing.T) {
	cases := []struct {
		name   string
		counts map[models.RegionStatus]int
		want   models.RunStatus
		done   bool
	}{
		{"open region", map[models.RegionStatus]int{models.RegionCompleted: 2, models.RegionRunning: 1}, "", false},
		{"pending region", map[models.RegionStatus]int{models.RegionPending: 1}, "", false},
		{"no regions", map[models.RegionStatus]int{}, "", false},
		{"all completed", map[models.RegionStatus]int{models.RegionCompleted: 3}, models.RunCompleted, true},
		{"all failed", map[models.RegionStatus]int{models.RegionFailed: 2}, models.RunFailed, true},
		{"mixed", map[models.RegionStatus]int{models.RegionCompleted: 2, models.RegionFailed: 1}, models.RunPartial, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, done := AggregateRunStatus(tc.counts)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.done, done)
		})
	}
}

func TestSummarize_TotalsMatch(t *testing.T) {
	findings := []models.Finding{
		{Service: "EC2", Severity: models.SeverityHigh},
		{Service: "EC2", Severity: models.SeverityCritical},
		{Service: "EKS", Severity: models.SeverityHigh},
		{Service: "COMMON", Severity: models.SeverityMedium},
	}
	s := Summarize("s", models.RunCompleted, findings)

	sum := func(m map[string]int) int {
		n := 0
		for _, v := range m {
			n += v
		}
		return n
	}
	assert.Equal(t, 4, s.TotalFindings)
	assert.Equal(t, s.TotalFindings, sum(s.SeverityTotals))
	assert.Equal(t, s.TotalFindings, sum(s.ServiceTotals))
	assert.Equal(t, 2, s.SeverityTotals["HIGH"])
}

func TestNormalizeScope(t *testing.T) {
	assert.Equal(t, []string{"all"}, normalizeScope(nil))
	assert.Equal(t, []string{"all"}, normalizeScope([]string{"us-east-1", "ALL"}))
	assert.Equal(t, []string{"us-east-1", models.GlobalRegion}, normalizeScope([]string{"us-east-1", "global", "US-EAST-1"}))
}
