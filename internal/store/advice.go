package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// SaveAdvice stores advice for a finding, replacing any earlier advice for
// the same finding.
func (s *SQLStore) SaveAdvice(ctx context.Context, a models.Advice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO advice (id, finding_id, model, prompt_hash, content_md, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(finding_id) DO UPDATE SET
			model = excluded.model,
			prompt_hash = excluded.prompt_hash,
			content_md = excluded.content_md,
			created_at = excluded.created_at
	`, a.ID, a.FindingID, a.Model, a.PromptHash, a.ContentMD, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("save advice for %s: %w", a.FindingID, err)
	}
	return nil
}

// GetAdvice returns the advice attached to a finding or ErrNotFound.
func (s *SQLStore) GetAdvice(ctx context.Context, findingID string) (*models.Advice, error) {
	var (
		a         models.Advice
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, finding_id, model, prompt_hash, content_md, created_at
		FROM advice WHERE finding_id = ?
	`, findingID).Scan(&a.ID, &a.FindingID, &a.Model, &a.PromptHash, &a.ContentMD, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("advice for %s: %w", findingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get advice for %s: %w", findingID, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("get advice for %s: %w", findingID, err)
	}
	return &a, nil
}
