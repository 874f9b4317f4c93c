// Package render turns scan projections into text. It is a pure rendering
// package: no store access and no AWS calls.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// Markdown renders an export as a Markdown report. Blocks are separated by
// a blank line.
//
// Example output:
//
//	# Scan 5f0c...
//
//	## Summary
//
//	Status: COMPLETED
//
//	Total Findings: 1
//
//	## Findings
//
//	### EC2_SG_OPEN_SSH (EC2)
//
//	Severity: HIGH
//
//	Region: us-east-1
//
//	Evidence:
//
//	````json
//	{ ... }
//	````
func Markdown(export models.Export) (string, error) {
	blocks := []string{
		"# Scan " + export.ScanID,
		"## Summary",
		fmt.Sprintf("Status: %s", export.Summary.Status),
		fmt.Sprintf("Total Findings: %d", export.Summary.TotalFindings),
		"## Findings",
	}
	for _, f := range export.Findings {
		evidence, err := indentJSON(f.Evidence)
		if err != nil {
			return "", fmt.Errorf("evidence for %s: %w", f.RuleID, err)
		}
		region := "global"
		if f.Region != nil && *f.Region != "" {
			region = *f.Region
		}
		blocks = append(blocks, fmt.Sprintf("### %s (%s)", f.RuleID, f.Service))
		if f.Title != "" {
			blocks = append(blocks, "Title: "+f.Title)
		}
		blocks = append(blocks,
			fmt.Sprintf("Severity: %s", f.Severity),
			"Region: "+region,
			"Evidence:",
			"````json\n"+evidence+"\n````",
		)
		if f.Advice != nil && strings.TrimSpace(*f.Advice) != "" {
			blocks = append(blocks, "Remediation:", strings.TrimSpace(*f.Advice))
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// WriteJSON writes v as indented JSON to w.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func indentJSON(v any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
