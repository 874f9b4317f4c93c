package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// CreateScan inserts the run and its PENDING region rows atomically.
func (s *SQLStore) CreateScan(ctx context.Context, run models.ScanRun, regions []string) error {
	scope, err := marshalJSON(run.RegionScope)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	identity, err := marshalJSON(run.CallerIdentity)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	perms, err := marshalJSON(run.MinimalPermissions)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create scan: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_runs (id, created_at, status, region_scope, caller_identity, minimal_permissions)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, formatTime(run.CreatedAt), string(run.Status), scope, identity, perms)
	if err != nil {
		return fmt.Errorf("create scan: insert run: %w", err)
	}

	if err := insertRegions(ctx, tx, run.ID, regions); err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create scan: commit: %w", err)
	}
	return nil
}

// EnsureRegions adds PENDING rows for regions the scan does not have.
func (s *SQLStore) EnsureRegions(ctx context.Context, scanID string, regions []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure regions: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertRegions(ctx, tx, scanID, regions); err != nil {
		return fmt.Errorf("ensure regions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure regions: commit: %w", err)
	}
	return nil
}

// insertRegions relies on UNIQUE(scan_id, region) to skip existing rows.
func insertRegions(ctx context.Context, tx *sql.Tx, scanID string, regions []string) error {
	for _, region := range regions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scan_regions (id, scan_id, region, status)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(scan_id, region) DO NOTHING
		`, uuid.NewString(), scanID, region, string(models.RegionPending))
		if err != nil {
			return fmt.Errorf("insert region %s: %w", region, err)
		}
	}
	return nil
}

// GetRun returns the run or ErrNotFound.
func (s *SQLStore) GetRun(ctx context.Context, scanID string) (*models.ScanRun, error) {
	var (
		run                          models.ScanRun
		createdAt, status            string
		scope, identity, permissions string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, status, region_scope, caller_identity, minimal_permissions
		FROM scan_runs WHERE id = ?
	`, scanID).Scan(&run.ID, &createdAt, &status, &scope, &identity, &permissions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", scanID, err)
	}

	run.Status = models.RunStatus(status)
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("get scan %s: %w", scanID, err)
	}
	if err := unmarshalJSON(scope, &run.RegionScope); err != nil {
		return nil, fmt.Errorf("get scan %s: region_scope: %w", scanID, err)
	}
	if err := unmarshalJSON(identity, &run.CallerIdentity); err != nil {
		return nil, fmt.Errorf("get scan %s: caller_identity: %w", scanID, err)
	}
	if err := unmarshalJSON(permissions, &run.MinimalPermissions); err != nil {
		return nil, fmt.Errorf("get scan %s: minimal_permissions: %w", scanID, err)
	}
	return &run, nil
}

// ListRegions returns the scan's regions in creation order.
func (s *SQLStore) ListRegions(ctx context.Context, scanID string) ([]models.ScanRegion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_id, region, status, started_at, finished_at, error
		FROM scan_regions WHERE scan_id = ? ORDER BY rowid
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var regions []models.ScanRegion
	for rows.Next() {
		var (
			r                 models.ScanRegion
			status            string
			started, finished sql.NullString
			errText           sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ScanID, &r.Region, &status, &started, &finished, &errText); err != nil {
			return nil, fmt.Errorf("list regions: scan: %w", err)
		}
		r.Status = models.RegionStatus(status)
		if r.StartedAt, err = parseNullTime(started); err != nil {
			return nil, fmt.Errorf("list regions: %w", err)
		}
		if r.FinishedAt, err = parseNullTime(finished); err != nil {
			return nil, fmt.Errorf("list regions: %w", err)
		}
		r.Error = stringPtr(errText)
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regions, nil
}

// SetRunStatus overwrites the run status. Writing the same value twice is
// harmless.
func (s *SQLStore) SetRunStatus(ctx context.Context, scanID string, status models.RunStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scan_runs SET status = ? WHERE id = ?`, string(status), scanID)
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return requireRow(res, scanID)
}

// FailOpenRegions is used when a scan cannot run at all.
func (s *SQLStore) FailOpenRegions(ctx context.Context, scanID, msg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_regions
		SET status = ?, error = ?, finished_at = ?
		WHERE scan_id = ? AND status IN (?, ?)
	`, string(models.RegionFailed), msg, formatTime(at), scanID,
		string(models.RegionPending), string(models.RegionRunning))
	if err != nil {
		return fmt.Errorf("fail open regions: %w", err)
	}
	return nil
}

// RegionCounts groups the scan's regions by status.
func (s *SQLStore) RegionCounts(ctx context.Context, scanID string) (map[models.RegionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM scan_regions WHERE scan_id = ? GROUP BY status
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("region counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RegionStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("region counts: scan: %w", err)
		}
		counts[models.RegionStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("region counts: %w", err)
	}
	return counts, nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
