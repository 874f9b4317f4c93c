package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) MarkRunRunning(ctx context.Context, scanID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE scan_runs SET status = ? WHERE id = ? AND status = ?
	`, string(models.RunRunning), scanID, string(models.RunPending))
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

func (t *sqlTx) MarkRegionRunning(ctx context.Context, scanID, region string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE scan_regions
		SET status = ?, started_at = ?, finished_at = NULL, error = NULL
		WHERE scan_id = ? AND region = ?
	`, string(models.RegionRunning), formatTime(at), scanID, region)
	if err != nil {
		return fmt.Errorf("mark region %s running: %w", region, err)
	}
	return requireRow(res, "region "+region)
}

func (t *sqlTx) InsertFindings(ctx context.Context, findings []models.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO findings
		(id, scan_id, service, rule_id, severity, status, evidence, region, resource_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("insert findings: prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		evidence, err := marshalJSON(f.Evidence)
		if err != nil {
			return fmt.Errorf("insert finding %s: %w", f.RuleID, err)
		}
		_, err = stmt.ExecContext(ctx,
			f.ID,
			f.ScanID,
			f.Service,
			f.RuleID,
			string(f.Severity),
			f.Status,
			evidence,
			nullString(f.Region),
			f.ResourceHash,
			formatTime(f.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert finding %s: %w", f.RuleID, err)
		}
	}
	return nil
}

func (t *sqlTx) CompleteRegion(ctx context.Context, scanID, region string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE scan_regions SET status = ?, finished_at = ?, error = NULL
		WHERE scan_id = ? AND region = ?
	`, string(models.RegionCompleted), formatTime(at), scanID, region)
	if err != nil {
		return fmt.Errorf("complete region %s: %w", region, err)
	}
	return requireRow(res, "region "+region)
}

func (t *sqlTx) FailRegion(ctx context.Context, scanID, region, msg string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE scan_regions SET status = ?, finished_at = ?, error = ?
		WHERE scan_id = ? AND region = ?
	`, string(models.RegionFailed), formatTime(at), msg, scanID, region)
	if err != nil {
		return fmt.Errorf("fail region %s: %w", region, err)
	}
	return requireRow(res, "region "+region)
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback after a successful Commit is a no-op.
func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
