package models

import "time"

// Severity is the impact level a rule assigns to its findings. The set of
// values is driven by the rule catalog; the constants below are the levels
// the bundled catalog uses.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Finding statuses emitted by the bundled evaluators. Like Severity the
// vocabulary is open: a catalog entry may override the status an evaluator
// writes through its evaluation config.
const (
	StatusFail     = "FAIL"
	StatusWarn     = "WARN"
	StatusCritical = "CRITICAL"
	StatusHigh     = "HIGH"
)

// Finding is a single rule match persisted for a scan.
// It never carries the raw resource identifier, only its ResourceHash.
type Finding struct {
	ID           string         `json:"id"`
	ScanID       string         `json:"scan_id"`
	Service      string         `json:"service"`
	RuleID       string         `json:"rule_id"`
	Severity     Severity       `json:"severity"`
	Status       string         `json:"status"`
	Evidence     map[string]any `json:"evidence"`
	Region       *string        `json:"region"`
	ResourceHash string         `json:"resource_hash"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RegionOrGlobal returns the finding's region, or "global" when the finding
// is not region-partitioned.
func (f Finding) RegionOrGlobal() string {
	if f.Region == nil || *f.Region == "" {
		return "global"
	}
	return *f.Region
}

// Advice is the optional remediation text attached to one finding.
type Advice struct {
	ID         string    `json:"id"`
	FindingID  string    `json:"finding_id"`
	Model      string    `json:"model"`
	PromptHash string    `json:"prompt_hash"`
	ContentMD  string    `json:"content_md"`
	CreatedAt  time.Time `json:"created_at"`
}
