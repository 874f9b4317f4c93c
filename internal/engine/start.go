package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pankaj-dahiya-devops/securescope/internal/dispatch"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// StartScan validates the credential, persists the run and its PENDING
// regions, parks the credential in the vault and enqueues execution. It
// returns as soon as the job is queued.
//
// A failed identity check returns *CredentialValidationError and creates
// nothing. Permission probe failures never block the scan.
func (o *Orchestrator) StartScan(ctx context.Context, req ScanRequest) (string, error) {
	validation, err := o.provider.ValidateCredentials(ctx, req.Credential)
	if err != nil {
		return "", &CredentialValidationError{Err: err}
	}

	scope := normalizeScope(req.Regions)
	run := models.ScanRun{
		ID:                 uuid.NewString(),
		CreatedAt:          o.now(),
		Status:             models.RunPending,
		RegionScope:        scope,
		CallerIdentity:     validation.Identity,
		MinimalPermissions: validation.Permissions,
	}
	if err := o.store.CreateScan(ctx, run, initialRegions(scope)); err != nil {
		return "", fmt.Errorf("create scan: %w", err)
	}

	log := o.logger.With().Str("scan_id", run.ID).Logger()

	key, err := o.vault.Store(ctx, req.Credential, o.ttl)
	if err != nil {
		o.abort(ctx, run.ID, "credential vault unavailable")
		return "", fmt.Errorf("store credential: %w", err)
	}

	job := dispatch.Job{ScanID: run.ID, VaultKey: key, RegionScope: scope}
	if err := o.dispatcher.Enqueue(ctx, job); err != nil {
		if rerr := o.vault.Revoke(ctx, key); rerr != nil {
			log.Warn().Err(rerr).Msg("revoke credential after enqueue failure")
		}
		o.abort(ctx, run.ID, "scan could not be queued")
		return "", fmt.Errorf("enqueue scan: %w", err)
	}

	o.metrics.ScanStarted()
	log.Info().
		Strs("region_scope", scope).
		Str("account", validation.Identity["Account"]).
		Msg("scan queued")
	return run.ID, nil
}

// abort fails every open region, then settles the run from its region
// counts. Regions that already finished keep their status, so aborting a
// terminal run leaves it unchanged.
func (o *Orchestrator) abort(ctx context.Context, scanID, msg string) {
	log := o.logger.With().Str("scan_id", scanID).Logger()
	if err := o.store.FailOpenRegions(ctx, scanID, msg, o.now()); err != nil {
		log.Error().Err(err).Msg("fail open regions")
	}
	counts, err := o.store.RegionCounts(ctx, scanID)
	if err != nil {
		log.Error().Err(err).Msg("count regions")
		return
	}
	status, done := AggregateRunStatus(counts)
	if !done {
		status = models.RunFailed
	}
	if err := o.store.SetRunStatus(ctx, scanID, status); err != nil {
		log.Error().Err(err).Msg("mark run failed")
	}
}

// AbandonScan settles a job the queue dropped before any worker ran it.
// The credential is revoked and open regions are failed so the run never
// stays PENDING.
func (o *Orchestrator) AbandonScan(ctx context.Context, job dispatch.Job) {
	ctx = context.WithoutCancel(ctx)
	if err := o.vault.Revoke(ctx, job.VaultKey); err != nil {
		o.logger.Warn().Err(err).Str("scan_id", job.ScanID).Msg("revoke credential")
	}
	o.abort(ctx, job.ScanID, "scan dropped on shutdown")
}

// normalizeScope trims and dedupes the requested regions, preserving
// order. An empty list or any "all" entry yields ["all"].
func normalizeScope(regions []string) []string {
	seen := make(map[string]struct{}, len(regions))
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.EqualFold(r, models.ScopeAll) {
			return []string{models.ScopeAll}
		}
		if strings.EqualFold(r, models.GlobalRegion) {
			r = models.GlobalRegion
		}
		key := strings.ToLower(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return []string{models.ScopeAll}
	}
	return out
}

// initialRegions is the region set visible to status queries before
// execution starts: the explicit scope, or GLOBAL alone for "all".
func initialRegions(scope []string) []string {
	if isAllScope(scope) {
		return []string{models.GlobalRegion}
	}
	return scope
}

func isAllScope(scope []string) bool {
	return len(scope) == 0 || (len(scope) == 1 && strings.EqualFold(scope[0], models.ScopeAll))
}
