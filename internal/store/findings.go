package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// ListFindings returns the scan's findings in insertion order.
func (s *SQLStore) ListFindings(ctx context.Context, scanID string, filter FindingFilter) ([]models.Finding, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, scan_id, service, rule_id, severity, status, evidence, region, resource_hash, created_at
		FROM findings WHERE scan_id = ?`)
	args := []any{scanID}
	if filter.Service != "" {
		query.WriteString(` AND service = ?`)
		args = append(args, filter.Service)
	}
	if filter.Severity != "" {
		query.WriteString(` AND severity = ?`)
		args = append(args, filter.Severity)
	}
	query.WriteString(` ORDER BY rowid`)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		var (
			f                  models.Finding
			severity, evidence string
			createdAt          string
			region             sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Service, &f.RuleID, &severity, &f.Status,
			&evidence, &region, &f.ResourceHash, &createdAt); err != nil {
			return nil, fmt.Errorf("list findings: scan: %w", err)
		}
		f.Severity = models.Severity(severity)
		f.Region = stringPtr(region)
		if err := unmarshalJSON(evidence, &f.Evidence); err != nil {
			return nil, fmt.Errorf("list findings: evidence of %s: %w", f.ID, err)
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("list findings: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	return findings, nil
}
