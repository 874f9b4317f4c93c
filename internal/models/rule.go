package models

// Rule is a declarative check loaded from the rule catalog. Evaluation holds
// evaluator-specific settings; its "evaluator" key names the function that
// implements the check.
type Rule struct {
	ID                      string         `yaml:"id"                      json:"id"`
	Service                 string         `yaml:"service"                 json:"service"`
	Title                   string         `yaml:"title"                   json:"title"`
	Severity                Severity       `yaml:"severity"                json:"severity"`
	Rationale               string         `yaml:"rationale"               json:"rationale"`
	Evaluation              map[string]any `yaml:"evaluation"              json:"evaluation"`
	References              []Reference    `yaml:"references"              json:"references"`
	AutoRemediationPossible bool           `yaml:"autoRemediationPossible" json:"autoRemediationPossible"`
}

// Reference is a documentation link attached to a rule.
type Reference struct {
	Title string `yaml:"title" json:"title"`
	URL   string `yaml:"url"   json:"url"`
}

// Evaluator returns the evaluator name configured for the rule, or "" for
// documentation-only entries.
func (r Rule) Evaluator() string {
	name, _ := r.Evaluation["evaluator"].(string)
	return name
}

// ResourceRecord is the normalized attribute map a collector produces for
// one inventoried item. It always has "id", "type" and "region" keys.
type ResourceRecord map[string]any

// ID returns the record's "id" attribute.
func (r ResourceRecord) ID() string {
	s, _ := r["id"].(string)
	return s
}

// Type returns the record's "type" attribute.
func (r ResourceRecord) Type() string {
	s, _ := r["type"].(string)
	return s
}

// Region returns the record's "region" attribute.
func (r ResourceRecord) Region() string {
	s, _ := r["region"].(string)
	return s
}
