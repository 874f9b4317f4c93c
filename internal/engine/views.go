package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/render"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
)

// ExportResult is the output of ExportScan. Exactly one of Data and
// Markdown is set, according to Format.
type ExportResult struct {
	Format   ExportFormat
	Data     *models.Export
	Markdown string
}

// GetStatus returns the run status and every region's progress in creation
// order.
func (o *Orchestrator) GetStatus(ctx context.Context, scanID string) (*models.ScanStatus, error) {
	run, err := o.store.GetRun(ctx, scanID)
	if err != nil {
		return nil, err
	}
	regions, err := o.store.ListRegions(ctx, scanID)
	if err != nil {
		return nil, err
	}

	out := &models.ScanStatus{
		ScanID:  run.ID,
		Status:  run.Status,
		Regions: make([]models.RegionProgress, 0, len(regions)),
	}
	for _, r := range regions {
		out.Regions = append(out.Regions, models.RegionProgress{
			Region:     r.Region,
			Status:     r.Status,
			StartedAt:  formatTimePtr(r.StartedAt),
			FinishedAt: formatTimePtr(r.FinishedAt),
			Error:      r.Error,
		})
	}
	return out, nil
}

// GetSummary returns finding totals by severity and by service.
func (o *Orchestrator) GetSummary(ctx context.Context, scanID string) (*models.Summary, error) {
	p, err := o.project(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return &p.Summary, nil
}

// ListFindings returns the scan's findings, optionally narrowed by service
// and severity.
func (o *Orchestrator) ListFindings(ctx context.Context, scanID string, filter store.FindingFilter) ([]models.Finding, error) {
	if _, err := o.store.GetRun(ctx, scanID); err != nil {
		return nil, err
	}
	return o.store.ListFindings(ctx, scanID, filter)
}

// ExportScan renders the scan as a structured object ("json") or a Markdown
// report ("md"). Both come from the same projection as GetSummary.
func (o *Orchestrator) ExportScan(ctx context.Context, scanID string, format string) (*ExportResult, error) {
	f := ExportFormat(strings.ToLower(strings.TrimSpace(format)))
	if f != ExportJSON && f != ExportMarkdown {
		return nil, &UnsupportedExportFormatError{Format: format}
	}

	p, err := o.project(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if f == ExportJSON {
		return &ExportResult{Format: f, Data: p}, nil
	}

	md, err := render.Markdown(*p)
	if err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return &ExportResult{Format: f, Markdown: md}, nil
}

// ListRules returns the loaded catalog rules for service, or every rule
// when service is empty.
func (o *Orchestrator) ListRules(service string) ([]models.Rule, error) {
	return o.rules.LoadRules(service)
}

// project is the single read path behind summary and export.
func (o *Orchestrator) project(ctx context.Context, scanID string) (*models.Export, error) {
	run, err := o.store.GetRun(ctx, scanID)
	if err != nil {
		return nil, err
	}
	findings, err := o.store.ListFindings(ctx, scanID, store.FindingFilter{})
	if err != nil {
		return nil, err
	}

	titles, err := o.catalogTitles(ctx)
	if err != nil {
		return nil, err
	}

	export := &models.Export{
		ScanID:   run.ID,
		Summary:  Summarize(run.ID, run.Status, findings),
		Findings: make([]models.ExportFinding, 0, len(findings)),
	}
	for _, f := range findings {
		ef := models.ExportFinding{
			RuleID:   f.RuleID,
			Service:  f.Service,
			Severity: f.Severity,
			Status:   f.Status,
			Region:   f.Region,
			Evidence: f.Evidence,
			Title:    titles[f.RuleID],
		}
		a, err := o.store.GetAdvice(ctx, f.ID)
		switch {
		case err == nil:
			ef.Advice = &a.ContentMD
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		export.Findings = append(export.Findings, ef)
	}
	return export, nil
}

// catalogTitles maps rule ids to titles from the persisted catalog, which
// keeps rules that were since removed from the YAML files.
func (o *Orchestrator) catalogTitles(ctx context.Context) (map[string]string, error) {
	rows, err := o.store.ListRuleCatalog(ctx, "")
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(rows))
	for _, r := range rows {
		titles[r.RuleID] = r.Title
	}
	return titles, nil
}

// Summarize aggregates findings by severity and by service. TotalFindings
// equals the sum of either map.
func Summarize(scanID string, status models.RunStatus, findings []models.Finding) models.Summary {
	s := models.Summary{
		ScanID:         scanID,
		Status:         status,
		SeverityTotals: make(map[string]int),
		ServiceTotals:  make(map[string]int),
		TotalFindings:  len(findings),
	}
	for _, f := range findings {
		s.SeverityTotals[string(f.Severity)]++
		s.ServiceTotals[f.Service]++
	}
	return s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
