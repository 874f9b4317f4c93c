package rules

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// EvaluatorFunc implements the check behind one or more catalog rules.
// It receives the rule (for its evaluation settings) and every resource the
// service's collectors produced, and filters by resource type itself since a
// service may produce several kinds of records.
//
// Evaluators must be pure: the same rule and resources always yield the same
// ordered results, and the input records are never modified. They must never
// call the AWS SDK or any external service.
type EvaluatorFunc func(rule models.Rule, resources []models.ResourceRecord) []Result

// Result is the finding data produced by an evaluator, before it is bound to
// a scan and persisted.
type Result struct {
	RuleID       string          `json:"rule_id"`
	Service      string          `json:"service"`
	Severity     models.Severity `json:"severity"`
	Status       string          `json:"status"`
	ResourceHash string          `json:"resource_hash"`
	Evidence     map[string]any  `json:"evidence"`
	Region       string          `json:"region"`
}

// BuildResult stamps rule identity, severity, resource hash and region onto
// evidence so every evaluator's output has the same shape.
func BuildResult(rule models.Rule, resource models.ResourceRecord, status string, evidence map[string]any) Result {
	if evidence == nil {
		evidence = map[string]any{}
	}
	return Result{
		RuleID:       rule.ID,
		Service:      rule.Service,
		Severity:     rule.Severity,
		Status:       status,
		ResourceHash: ResourceHash(resource.ID()),
		Evidence:     evidence,
		Region:       resource.Region(),
	}
}

// ResourceHash returns the hex SHA-256 digest of a raw resource identifier.
// Records without an id hash the literal "unknown".
func ResourceHash(id string) string {
	if id == "" {
		id = "unknown"
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
