package rules

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// RuleSource supplies catalog rules per service. *catalog.Loader satisfies it.
type RuleSource interface {
	LoadRules(service string) ([]models.Rule, error)
}

// Evaluator applies a service's catalog rules to collected resources.
type Evaluator struct {
	rules    RuleSource
	registry *EvaluatorRegistry
	logger   zerolog.Logger
}

// NewEvaluator wires an Evaluator to a rule source and evaluator registry.
func NewEvaluator(rules RuleSource, registry *EvaluatorRegistry, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		rules:    rules,
		registry: registry,
		logger:   logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate runs every rule of service that names an evaluator against
// resources and returns the merged results in catalog order. Rules without an
// evaluator are documentation-only and skipped; rules naming an unknown
// evaluator are skipped with a warning.
func (e *Evaluator) Evaluate(service string, resources []models.ResourceRecord) ([]Result, error) {
	rules, err := e.rules.LoadRules(service)
	if err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", service, err)
	}

	var results []Result
	for _, rule := range rules {
		name := rule.Evaluator()
		if name == "" {
			continue
		}
		fn, ok := e.registry.Lookup(name)
		if !ok {
			e.logger.Warn().Str("rule_id", rule.ID).Str("evaluator", name).Msg("unknown evaluator, rule skipped")
			continue
		}
		results = append(results, fn(rule, resources)...)
	}
	return results, nil
}
