package store

import (
	"context"
	"fmt"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// SyncRuleCatalog upserts every rule into rule_catalog in one transaction.
// Rows for rules no longer in the catalog are kept so old findings still
// resolve.
func (s *SQLStore) SyncRuleCatalog(ctx context.Context, rules []models.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync rule catalog: begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rules {
		docs, err := marshalJSON(r.References)
		if err != nil {
			return fmt.Errorf("sync rule %s: %w", r.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_catalog (rule_id, service, title, severity_default, docs)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(rule_id) DO UPDATE SET
				service = excluded.service,
				title = excluded.title,
				severity_default = excluded.severity_default,
				docs = excluded.docs
		`, r.ID, r.Service, r.Title, string(r.Severity), docs)
		if err != nil {
			return fmt.Errorf("sync rule %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync rule catalog: commit: %w", err)
	}
	return nil
}

// ListRuleCatalog returns persisted rules ordered by id, optionally for one
// service.
func (s *SQLStore) ListRuleCatalog(ctx context.Context, service string) ([]CatalogRow, error) {
	query := `SELECT rule_id, service, title, severity_default, docs FROM rule_catalog`
	var args []any
	if service != "" {
		query += ` WHERE service = ? COLLATE NOCASE`
		args = append(args, service)
	}
	query += ` ORDER BY rule_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rule catalog: %w", err)
	}
	defer rows.Close()

	var out []CatalogRow
	for rows.Next() {
		var (
			row  CatalogRow
			docs string
		)
		if err := rows.Scan(&row.RuleID, &row.Service, &row.Title, &row.SeverityDefault, &docs); err != nil {
			return nil, fmt.Errorf("list rule catalog: scan: %w", err)
		}
		if err := unmarshalJSON(docs, &row.Docs); err != nil {
			return nil, fmt.Errorf("list rule catalog: docs of %s: %w", row.RuleID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rule catalog: %w", err)
	}
	return out, nil
}
