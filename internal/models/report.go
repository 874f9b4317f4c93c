package models

// ScanStatus is the region-by-region progress view of a scan.
type ScanStatus struct {
	ScanID  string           `json:"scan_id"`
	Status  RunStatus        `json:"status"`
	Regions []RegionProgress `json:"regions"`
}

// RegionProgress is one row of ScanStatus.
type RegionProgress struct {
	Region     string       `json:"region"`
	Status     RegionStatus `json:"status"`
	StartedAt  *string      `json:"started_at,omitempty"`
	FinishedAt *string      `json:"finished_at,omitempty"`
	Error      *string      `json:"error,omitempty"`
}

// Summary aggregates a scan's findings by severity and by service.
// TotalFindings always equals the sum of either totals map.
type Summary struct {
	ScanID         string         `json:"scanId"`
	Status         RunStatus      `json:"status"`
	SeverityTotals map[string]int `json:"severityTotals"`
	ServiceTotals  map[string]int `json:"serviceTotals"`
	TotalFindings  int            `json:"totalFindings"`
}

// ExportFinding is the per-finding shape of a structured export.
type ExportFinding struct {
	RuleID   string         `json:"rule_id"`
	Service  string         `json:"service"`
	Severity Severity       `json:"severity"`
	Status   string         `json:"status"`
	Region   *string        `json:"region"`
	Evidence map[string]any `json:"evidence"`

	// Title comes from the persisted rule catalog and Advice from the
	// remediation enricher. Both are omitted when unknown.
	Title  string  `json:"title,omitempty"`
	Advice *string `json:"advice,omitempty"`
}

// Export is the structured export of a scan.
type Export struct {
	ScanID   string          `json:"scan_id"`
	Summary  Summary         `json:"summary"`
	Findings []ExportFinding `json:"findings"`
}
