package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
)

// ExecuteScan runs a queued scan to completion. It is the dispatch.Handler
// of the scan queue and is safe to call again for the same scan: missing
// region rows are recreated and regions that already finished are skipped.
//
// A job redelivered after its run reached a terminal status is a no-op.
//
// Region failures are recorded on the region and never returned. The
// returned error covers only whole-scan preconditions.
func (o *Orchestrator) ExecuteScan(ctx context.Context, job dispatch.Job) error {
	log := o.logger.With().Str("scan_id", job.ScanID).Logger()
	// Terminal writes and the revoke must land even if the queue is shutting
	// down.
	bg := context.WithoutCancel(ctx)

	run, err := o.store.GetRun(ctx, job.ScanID)
	if err != nil {
		return fmt.Errorf("load scan: %w", err)
	}
	if run.Status.Terminal() {
		log.Info().Str("status", string(run.Status)).Msg("scan already finished, job ignored")
		return nil
	}

	cred, ok, err := o.vault.Retrieve(ctx, job.VaultKey)
	if err != nil {
		log.Error().Err(err).Msg("credential vault unavailable, scan aborted")
		o.abort(bg, job.ScanID, "credential vault unavailable")
		return fmt.Errorf("retrieve credential: %w", err)
	}
	if !ok {
		log.Error().Msg("credentials expired or missing, scan aborted")
		o.abort(bg, job.ScanID, ErrCredentialExpired.Error())
		return ErrCredentialExpired
	}
	defer func() {
		if err := o.vault.Revoke(bg, job.VaultKey); err != nil {
			log.Warn().Err(err).Msg("revoke credential")
		}
	}()

	regions, err := o.resolveRegions(ctx, *cred, job.RegionScope)
	if err != nil {
		log.Error().Err(err).Msg("region discovery failed, scan aborted")
		o.abort(bg, job.ScanID, err.Error())
		return err
	}
	if err := o.store.EnsureRegions(ctx, job.ScanID, regions); err != nil {
		o.abort(bg, job.ScanID, "region rows could not be created")
		return fmt.Errorf("seed regions: %w", err)
	}

	pending, err := o.openRegions(ctx, job.ScanID, regions)
	if err != nil {
		o.abort(bg, job.ScanID, "region state could not be read")
		return err
	}
	log.Info().Strs("regions", pending).Msg("scan started")

	// Workers never return an error, so Wait only joins them.
	var g errgroup.Group
	for _, region := range pending {
		g.Go(func() error {
			o.runRegion(ctx, job.ScanID, *cred, region)
			return nil
		})
	}
	_ = g.Wait()

	// A retry where every region had already finished still settles the run.
	if len(pending) == 0 {
		o.settleRun(bg, job.ScanID, log)
	}
	log.Info().Msg("scan finished")
	return nil
}

// resolveRegions returns the explicit scope plus GLOBAL, or every enabled
// region plus GLOBAL for an "all" scope. Duplicates are dropped
// case-insensitively.
func (o *Orchestrator) resolveRegions(ctx context.Context, cred models.Credential, scope []string) ([]string, error) {
	regions := scope
	if isAllScope(scope) {
		active, err := o.provider.ActiveRegions(ctx, cred)
		if err != nil {
			return nil, fmt.Errorf("resolve regions: %w", err)
		}
		regions = active
	}

	out := make([]string, 0, len(regions)+1)
	seen := make(map[string]struct{}, len(regions)+1)
	for _, r := range append(append([]string{}, regions...), models.GlobalRegion) {
		key := strings.ToLower(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if key == strings.ToLower(models.GlobalRegion) {
			r = models.GlobalRegion
		}
		out = append(out, r)
	}
	return out, nil
}

// openRegions filters regions down to those not yet terminal.
func (o *Orchestrator) openRegions(ctx context.Context, scanID string, regions []string) ([]string, error) {
	rows, err := o.store.ListRegions(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	done := make(map[string]bool, len(rows))
	for _, r := range rows {
		done[r.Region] = r.Status.Terminal()
	}
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		if !done[r] {
			out = append(out, r)
		}
	}
	return out, nil
}

// runRegion is one region worker. Every error is contained here and
// written to the region row.
func (o *Orchestrator) runRegion(ctx context.Context, scanID string, cred models.Credential, region string) {
	start := o.now()
	log := o.logger.With().Str("scan_id", scanID).Str("region", region).Logger()
	bg := context.WithoutCancel(ctx)

	status := models.RegionCompleted
	findings, err := o.scanRegion(ctx, scanID, cred, region, start)
	if err != nil {
		status = models.RegionFailed
		log.Warn().Err(err).Msg("region failed")
		if ferr := o.failRegion(bg, scanID, region, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("record region failure")
		}
	} else {
		log.Info().Int("findings", len(findings)).Msg("region completed")
		for _, f := range findings {
			o.metrics.FindingRecorded(f.Service, string(f.Severity))
		}
		if len(findings) > 0 {
			if err := o.enricher.Enrich(ctx, findings); err != nil {
				log.Warn().Err(err).Msg("advice enrichment failed")
			}
		}
	}
	o.metrics.RegionFinished(string(status), o.now().Sub(start))

	o.settleRun(bg, scanID, log)
}

// scanRegion marks the region running, collects and evaluates outside any
// transaction, then writes the findings and COMPLETED in one transaction.
func (o *Orchestrator) scanRegion(
	ctx context.Context,
	scanID string,
	cred models.Credential,
	region string,
	start time.Time,
) ([]models.Finding, error) {
	err := o.inTx(ctx, func(tx store.Tx) error {
		if err := tx.MarkRunRunning(ctx, scanID); err != nil {
			return err
		}
		return tx.MarkRegionRunning(ctx, scanID, region, start)
	})
	if err != nil {
		return nil, err
	}

	findings, err := o.collectFindings(ctx, scanID, cred, region)
	if err != nil {
		return nil, err
	}

	err = o.inTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertFindings(ctx, findings); err != nil {
			return err
		}
		return tx.CompleteRegion(ctx, scanID, region, o.now())
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// collectFindings runs every collector for region in registry order and
// evaluates each collector's records against its service's rules.
// Findings from the GLOBAL pseudo-region carry no region.
func (o *Orchestrator) collectFindings(
	ctx context.Context,
	scanID string,
	cred models.Credential,
	region string,
) ([]models.Finding, error) {
	collectors, err := o.provider.Collectors(ctx, cred, region)
	if err != nil {
		return nil, fmt.Errorf("resolve collectors: %w", err)
	}

	var findingRegion *string
	if !strings.EqualFold(region, models.GlobalRegion) {
		findingRegion = &region
	}
	createdAt := o.now()

	var findings []models.Finding
	for _, c := range collectors {
		records, err := c.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect %s %s: %w", c.Service(), c.ResourceType(), err)
		}
		if len(records) == 0 {
			continue
		}
		results, err := o.evaluator.Evaluate(c.Service(), records)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", c.Service(), err)
		}
		for _, r := range results {
			findings = append(findings, models.Finding{
				ID:           uuid.NewString(),
				ScanID:       scanID,
				Service:      c.Service(),
				RuleID:       r.RuleID,
				Severity:     r.Severity,
				Status:       r.Status,
				Evidence:     r.Evidence,
				Region:       findingRegion,
				ResourceHash: r.ResourceHash,
				CreatedAt:    createdAt,
			})
		}
	}
	return findings, nil
}

func (o *Orchestrator) failRegion(ctx context.Context, scanID, region, msg string) error {
	return o.inTx(ctx, func(tx store.Tx) error {
		return tx.FailRegion(ctx, scanID, region, msg, o.now())
	})
}

// inTx runs fn in a fresh transaction, committing on success and rolling
// back otherwise.
func (o *Orchestrator) inTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// settleRun writes the aggregated run status once no region is open.
//
// Two workers finishing together may both see zero open regions and both
// write. They write the same value, so the race is benign.
func (o *Orchestrator) settleRun(ctx context.Context, scanID string, log zerolog.Logger) {
	counts, err := o.store.RegionCounts(ctx, scanID)
	if err != nil {
		log.Error().Err(err).Msg("count regions")
		return
	}
	status, done := AggregateRunStatus(counts)
	if !done {
		return
	}
	if err := o.store.SetRunStatus(ctx, scanID, status); err != nil {
		log.Error().Err(err).Msg("set run status")
		return
	}
	log.Info().Str("status", string(status)).Msg("scan settled")
}

// AggregateRunStatus derives the run status from region counts. done is
// false while any region is PENDING or RUNNING, or when there are none.
// All COMPLETED gives COMPLETED, all FAILED gives FAILED, a mix gives
// PARTIAL.
func AggregateRunStatus(counts map[models.RegionStatus]int) (models.RunStatus, bool) {
	if counts[models.RegionPending]+counts[models.RegionRunning] > 0 {
		return "", false
	}
	completed, failed := counts[models.RegionCompleted], counts[models.RegionFailed]
	switch {
	case completed == 0 && failed == 0:
		return "", false
	case failed == 0:
		return models.RunCompleted, true
	case completed == 0:
		return models.RunFailed, true
	default:
		return models.RunPartial, true
	}
}
